package command

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/arzzra/gb_session/pkg/session"
	"github.com/emiago/sipgo/sip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDeviceID = "34020000001320000001"

func TestQueryFireAndForget(t *testing.T) {
	tests := []struct {
		name string
		call func(s *Service) error
	}{
		{name: "preset", call: func(s *Service) error {
			return s.Query.QueryPreset(context.Background(), testDeviceID, "34020000001310000001")
		}},
		{name: "device info", call: func(s *Service) error {
			return s.Query.QueryDeviceInfo(context.Background(), testDeviceID)
		}},
		{name: "device status", call: func(s *Service) error {
			return s.Query.QueryDeviceStatus(context.Background(), testDeviceID)
		}},
		{name: "catalog", call: func(s *Service) error {
			return s.Query.QueryDeviceCatalog(context.Background(), testDeviceID)
		}},
		{name: "subscribe catalog", call: func(s *Service) error {
			return s.Query.SubscribeDeviceCatalog(context.Background(), testDeviceID)
		}},
		{name: "ptz", call: func(s *Service) error {
			return s.Control.ControlPTZ(context.Background(), PTZControl{
				DeviceID:     testDeviceID,
				ChannelID:    "34020000001310000001",
				LeftRight:    1,
				HorizonSpeed: 0x80,
			})
		}},
		{name: "snapshot", call: func(s *Service) error {
			return s.Control.SnapshotImage(context.Background(), SnapshotParams{
				DeviceID:  testDeviceID,
				ChannelID: "34020000001310000001",
				Num:       1,
				Interval:  1,
				URI:       "http://192.168.1.10/snapshot",
				SessionID: "snap-1",
			})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, time.Second)
			env.transport.setScript(func(req *sip.Request) []*sip.Response {
				return []*sip.Response{reply(req, 200, "OK", nil, "device-tag")}
			})

			require.NoError(t, tt.call(env.service))
			assert.Equal(t, 1, env.transport.sentCount())

			// Финальный ответ снимает регистрацию без участия вызывающего
			assert.Eventually(t, func() bool { return env.table.Len() == 0 }, time.Second, 10*time.Millisecond)
		})
	}
}

func TestQueryUnansweredExpires(t *testing.T) {
	env := newTestEnv(t, 100*time.Millisecond)

	require.NoError(t, env.service.Query.QueryDeviceInfo(context.Background(), testDeviceID))
	assert.Equal(t, 1, env.table.Len())

	assert.Eventually(t, func() bool { return env.table.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestQueryBuilderError(t *testing.T) {
	env := newTestEnv(t, time.Second)
	env.builder.err = errors.New("unknown device")

	err := env.service.Query.QueryDeviceCatalog(context.Background(), testDeviceID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query_device_catalog")
	assert.Equal(t, 0, env.transport.sentCount())
	assert.Equal(t, 0, env.table.Len())
}

func TestQueryTransportError(t *testing.T) {
	env := newTestEnv(t, time.Second)
	env.transport.sendErr = errors.New("network unreachable")

	err := env.service.Control.ControlPTZ(context.Background(), PTZControl{DeviceID: testDeviceID})
	require.Error(t, err)
	assert.Equal(t, 0, env.table.Len())
}

func TestLazyQueryDelayed(t *testing.T) {
	tests := []struct {
		name string
		call func(q *Query) error
	}{
		{name: "device info", call: func(q *Query) error {
			return q.LazyQueryDeviceInfo(context.Background(), testDeviceID)
		}},
		{name: "catalog", call: func(q *Query) error {
			return q.LazyQueryDeviceCatalog(context.Background(), testDeviceID)
		}},
		{name: "subscribe", call: func(q *Query) error {
			return q.LazySubscribeDeviceCatalog(context.Background(), testDeviceID)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, time.Second)
			env.transport.setScript(func(req *sip.Request) []*sip.Response {
				return []*sip.Response{reply(req, 200, "OK", nil, "device-tag")}
			})

			start := time.Now()
			require.NoError(t, tt.call(env.service.Query))

			// Запрос построен и зарезервирован, но еще не отправлен
			assert.Equal(t, 0, env.transport.sentCount())
			assert.Equal(t, 1, env.table.Len())

			require.Eventually(t, func() bool { return env.transport.sentCount() == 1 }, 2*time.Second, 5*time.Millisecond)
			assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)

			assert.Eventually(t, func() bool { return env.table.Len() == 0 }, time.Second, 10*time.Millisecond)
		})
	}
}

func TestLazyQueryTransportErrorLogged(t *testing.T) {
	env := newTestEnv(t, time.Second)
	env.transport.sendErr = errors.New("network unreachable")

	// Ошибка отложенной отправки не возвращается вызывающему
	require.NoError(t, env.service.Query.LazyQueryDeviceInfo(context.Background(), testDeviceID))
	assert.Eventually(t, func() bool { return env.table.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestLazyQueryClosedTable(t *testing.T) {
	env := newTestEnv(t, time.Second)

	require.NoError(t, env.service.Query.LazyQueryDeviceCatalog(context.Background(), testDeviceID))
	env.table.Close()

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 0, env.transport.sentCount(), "закрытая таблица не выполняет отложенные действия")
	assert.False(t, env.table.Has(session.NewIdent(testDeviceID, "", "call-1", 1)))
}

package builder

import (
	"bytes"
	"encoding/xml"
	"fmt"

	"github.com/arzzra/gb_session/pkg/command"
)

// ContentTypeMANSCDP тип тела команд GB28181
const ContentTypeMANSCDP = "Application/MANSCDP+xml"

// Типы команд MANSCDP
const (
	CmdDeviceInfo    = "DeviceInfo"
	CmdDeviceStatus  = "DeviceStatus"
	CmdCatalog       = "Catalog"
	CmdPresetQuery   = "PresetQuery"
	CmdDeviceControl = "DeviceControl"
	CmdDeviceConfig  = "DeviceConfig"
)

type mansQuery struct {
	XMLName  xml.Name `xml:"Query"`
	CmdType  string   `xml:"CmdType"`
	SN       uint32   `xml:"SN"`
	DeviceID string   `xml:"DeviceID"`
}

type mansControl struct {
	XMLName  xml.Name `xml:"Control"`
	CmdType  string   `xml:"CmdType"`
	SN       uint32   `xml:"SN"`
	DeviceID string   `xml:"DeviceID"`
	PTZCmd   string   `xml:"PTZCmd,omitempty"`
	Info     *ptzInfo `xml:"Info,omitempty"`
}

type ptzInfo struct {
	ControlPriority int `xml:"ControlPriority"`
}

type mansConfig struct {
	XMLName        xml.Name        `xml:"Control"`
	CmdType        string          `xml:"CmdType"`
	SN             uint32          `xml:"SN"`
	DeviceID       string          `xml:"DeviceID"`
	SnapShotConfig *snapShotConfig `xml:"SnapShotConfig"`
}

type snapShotConfig struct {
	SnapNum   uint8  `xml:"SnapNum"`
	Interval  uint8  `xml:"Interval"`
	UploadURL string `xml:"UploadURL"`
	SessionID string `xml:"SessionID"`
}

// marshalMANSCDP сериализует тело с XML заголовком
func marshalMANSCDP(v any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("<?xml version=\"1.0\"?>\r\n")
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "")
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("MANSCDP: %w", err)
	}
	buf.WriteString("\r\n")
	return buf.Bytes(), nil
}

// Биты байта команды PTZ (A.3.1)
const (
	ptzRight   byte = 1 << 0
	ptzLeft    byte = 1 << 1
	ptzDown    byte = 1 << 2
	ptzUp      byte = 1 << 3
	ptzZoomIn  byte = 1 << 4
	ptzZoomOut byte = 1 << 5
)

// EncodePTZ кодирует команду в 8-байтовую строку A50F01...
// Скорость зума занимает старшие 4 бита седьмого байта.
func EncodePTZ(ptz command.PTZControl) (string, error) {
	var cmd byte

	switch ptz.LeftRight {
	case 0:
	case 1:
		cmd |= ptzLeft
	case 2:
		cmd |= ptzRight
	default:
		return "", fmt.Errorf("некорректное направление влево/вправо: %d", ptz.LeftRight)
	}
	switch ptz.UpDown {
	case 0:
	case 1:
		cmd |= ptzUp
	case 2:
		cmd |= ptzDown
	default:
		return "", fmt.Errorf("некорректное направление вверх/вниз: %d", ptz.UpDown)
	}
	switch ptz.InOut {
	case 0:
	case 1:
		cmd |= ptzZoomIn
	case 2:
		cmd |= ptzZoomOut
	default:
		return "", fmt.Errorf("некорректное направление зума: %d", ptz.InOut)
	}

	if ptz.ZoomSpeed > 0x0F {
		return "", fmt.Errorf("скорость зума вне диапазона 0-15: %d", ptz.ZoomSpeed)
	}

	horizontal := ptz.HorizonSpeed
	vertical := ptz.VerticalSpeed
	zoom := ptz.ZoomSpeed << 4
	check := (0xA5 + 0x0F + 0x01 + int(cmd) + int(horizontal) + int(vertical) + int(zoom)) % 256

	return fmt.Sprintf("A50F01%02X%02X%02X%02X%02X", cmd, horizontal, vertical, zoom, check), nil
}

package command

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/pion/sdp/v3"
)

const rtpmapAttr = "rtpmap"

// gbAnswer SDP ответ устройства и расширения GB28181 вне стандарта SDP
type gbAnswer struct {
	Session *sdp.SessionDescription
	// SSRC из строки y=
	SSRC string
	// Format из строки f=
	Format string
	// URI из строки u= (канал:0 для архива)
	URI string
}

// parseAnswer разбирает SDP ответ.
// Строки y= и f= (GB28181) pion/sdp не принимает, u= вида "канал:0" не
// является URL, поэтому они вырезаются до разбора и возвращаются отдельно.
func parseAnswer(body []byte) (*gbAnswer, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, fmt.Errorf("пустое тело SDP")
	}

	answer := &gbAnswer{}
	var std bytes.Buffer

	scanner := bufio.NewScanner(bytes.NewReader(body))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "y="):
			answer.SSRC = strings.TrimSpace(line[2:])
			continue
		case strings.HasPrefix(line, "f="):
			answer.Format = strings.TrimSpace(line[2:])
			continue
		case strings.HasPrefix(line, "u="):
			answer.URI = strings.TrimSpace(line[2:])
			continue
		}
		std.WriteString(line)
		std.WriteString("\r\n")
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	sd := &sdp.SessionDescription{}
	if err := sd.Unmarshal(std.Bytes()); err != nil {
		return nil, err
	}
	answer.Session = sd
	return answer, nil
}

// payloadCodecs собирает соответствие payload type -> имя кодека по всем
// a=rtpmap всех медиасекций. Повторный payload type перезаписывается.
// Некорректный номер payload type - ошибка разбора.
func payloadCodecs(sd *sdp.SessionDescription) (map[uint8]string, error) {
	codecs := make(map[uint8]string)
	for _, media := range sd.MediaDescriptions {
		for _, attr := range media.Attributes {
			if attr.Key != rtpmapAttr {
				continue
			}
			pt, codec, ok, err := parseRtpmap(attr.Value)
			if err != nil {
				return nil, err
			}
			if ok {
				codecs[pt] = codec
			}
		}
	}
	return codecs, nil
}

// parseRtpmap разбирает значение "96 PS/90000" в (96, "PS").
// Пробелы вокруг и между полями нормализуются. Значение без описателя
// кодека пропускается (ok == false).
func parseRtpmap(value string) (uint8, string, bool, error) {
	fields := strings.Fields(value)
	if len(fields) < 2 {
		return 0, "", false, nil
	}

	pt, err := strconv.ParseUint(fields[0], 10, 8)
	if err != nil {
		return 0, "", false, fmt.Errorf("некорректный payload type %q: %w", fields[0], err)
	}

	desc := strings.Join(fields[1:], " ")
	if i := strings.IndexByte(desc, '/'); i >= 0 {
		desc = desc[:i]
	}
	return uint8(pt), strings.ToUpper(desc), true, nil
}

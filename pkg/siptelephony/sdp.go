package siptelephony

import (
	"strings"
	"time"

	"github.com/pion/sdp/v3"
	"github.com/pkg/errors"
)

// mediaDirection направление медиапотока из атрибутов SDP
type mediaDirection string

const (
	directionSendRecv mediaDirection = "sendrecv"
	directionSendOnly mediaDirection = "sendonly"
	directionRecvOnly mediaDirection = "recvonly"
	directionInactive mediaDirection = "inactive"
)

// holds сообщает, что предложение с таким направлением ставит нас на удержание
func (d mediaDirection) holds() bool {
	return d == directionSendOnly || d == directionInactive
}

// answer направление ответа на предложение
func (d mediaDirection) answer() mediaDirection {
	switch d {
	case directionSendOnly:
		return directionRecvOnly
	case directionRecvOnly:
		return directionSendOnly
	default:
		return d
	}
}

func parseOffer(body []byte) (*sdp.SessionDescription, error) {
	if len(body) == 0 {
		return nil, nil
	}
	offer := &sdp.SessionDescription{}
	if err := offer.Unmarshal(body); err != nil {
		return nil, errors.Wrap(err, "parse SDP offer")
	}
	return offer, nil
}

// offerDirection направление первого аудиопотока, атрибут уровня сессии
// используется, если у потока его нет. Предложение без атрибутов sendrecv.
func offerDirection(offer *sdp.SessionDescription) mediaDirection {
	if offer == nil {
		return directionSendRecv
	}
	for _, md := range offer.MediaDescriptions {
		if md.MediaName.Media != "audio" {
			continue
		}
		if d, ok := directionOf(md.Attributes); ok {
			return d
		}
		break
	}
	if d, ok := directionOf(offer.Attributes); ok {
		return d
	}
	return directionSendRecv
}

func directionOf(attrs []sdp.Attribute) (mediaDirection, bool) {
	for _, a := range attrs {
		switch d := mediaDirection(a.Key); d {
		case directionSendRecv, directionSendOnly, directionRecvOnly, directionInactive:
			return d, true
		}
	}
	return "", false
}

// buildAnswer формирует SDP ответ на предложение. Каждый предложенный поток
// повторяется с портом mediaPort; при mediaPort == 0 поток отклоняется.
func buildAnswer(offer *sdp.SessionDescription, host string, mediaPort int) ([]byte, error) {
	if offer == nil {
		return nil, nil
	}

	now := uint64(time.Now().Unix())
	answer := &sdp.SessionDescription{
		Version: 0,
		Origin: sdp.Origin{
			Username:       "-",
			SessionID:      now,
			SessionVersion: now,
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: host,
		},
		SessionName: "callkit",
		ConnectionInformation: &sdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: "IP4",
			Address:     &sdp.Address{Address: host},
		},
		TimeDescriptions: []sdp.TimeDescription{
			{Timing: sdp.Timing{StartTime: 0, StopTime: 0}},
		},
	}

	direction := offerDirection(offer).answer()
	for _, md := range offer.MediaDescriptions {
		formats := md.MediaName.Formats
		if len(formats) > 1 {
			formats = formats[:1]
		}
		desc := &sdp.MediaDescription{
			MediaName: sdp.MediaName{
				Media:   md.MediaName.Media,
				Port:    sdp.RangedPort{Value: mediaPort},
				Protos:  md.MediaName.Protos,
				Formats: formats,
			},
		}
		if mediaPort != 0 {
			for _, a := range md.Attributes {
				if a.Key == "rtpmap" && len(formats) == 1 && strings.HasPrefix(a.Value, formats[0]+" ") {
					desc.Attributes = append(desc.Attributes, a)
				}
			}
			desc.Attributes = append(desc.Attributes, sdp.NewPropertyAttribute(string(direction)))
		}
		answer.MediaDescriptions = append(answer.MediaDescriptions, desc)
	}

	data, err := answer.Marshal()
	if err != nil {
		return nil, errors.Wrap(err, "marshal SDP answer")
	}
	return data, nil
}

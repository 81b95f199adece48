package builder

import (
	"github.com/emiago/sipgo/sip"
)

// RequestOpt модифицирует запрос при построении
type RequestOpt func(req *sip.Request)

// WithFrom устанавливает From с тегом
func WithFrom(uri sip.Uri, tag string) RequestOpt {
	return func(req *sip.Request) {
		from := &sip.FromHeader{
			Address: uri,
			Params:  sip.NewParams(),
		}
		if tag != "" {
			from.Params = from.Params.Add("tag", tag)
		}
		req.RemoveHeader("From")
		req.AppendHeader(from)
	}
}

// WithTo устанавливает To, tag пустой для запросов вне диалога
func WithTo(uri sip.Uri, tag string) RequestOpt {
	return func(req *sip.Request) {
		to := &sip.ToHeader{
			Address: uri,
			Params:  sip.NewParams(),
		}
		if tag != "" {
			to.Params = to.Params.Add("tag", tag)
		}
		req.RemoveHeader("To")
		req.AppendHeader(to)
	}
}

// WithContact устанавливает Contact
func WithContact(uri sip.Uri) RequestOpt {
	return func(req *sip.Request) {
		req.RemoveHeader("Contact")
		req.AppendHeader(&sip.ContactHeader{
			Address: uri,
			Params:  sip.NewParams(),
		})
	}
}

// WithCallID устанавливает Call-ID
func WithCallID(callID string) RequestOpt {
	return func(req *sip.Request) {
		cid := sip.CallIDHeader(callID)
		req.RemoveHeader("Call-ID")
		req.AppendHeader(&cid)
	}
}

// WithCSeq устанавливает CSeq
func WithCSeq(seqNo uint32, method sip.RequestMethod) RequestOpt {
	return func(req *sip.Request) {
		req.RemoveHeader("CSeq")
		req.AppendHeader(&sip.CSeqHeader{
			SeqNo:      seqNo,
			MethodName: method,
		})
	}
}

// WithMaxForwards устанавливает Max-Forwards
func WithMaxForwards(hops int) RequestOpt {
	return func(req *sip.Request) {
		maxForwards := sip.MaxForwardsHeader(hops)
		req.AppendHeader(&maxForwards)
	}
}

// WithUserAgent устанавливает User-Agent
func WithUserAgent(userAgent string) RequestOpt {
	return func(req *sip.Request) {
		if userAgent == "" {
			return
		}
		req.AppendHeader(sip.NewHeader("User-Agent", userAgent))
	}
}

// WithExpires устанавливает Expires
func WithExpires(seconds uint32) RequestOpt {
	return func(req *sip.Request) {
		expires := sip.ExpiresHeader(seconds)
		req.AppendHeader(&expires)
	}
}

// WithHeaderString добавляет заголовок по имени и значению
func WithHeaderString(name, value string) RequestOpt {
	return func(req *sip.Request) {
		req.AppendHeader(sip.NewHeader(name, value))
	}
}

// WithBody устанавливает тело вместе с Content-Type
func WithBody(contentType string, body []byte) RequestOpt {
	return func(req *sip.Request) {
		ct := sip.ContentTypeHeader(contentType)
		req.AppendHeader(&ct)
		req.SetBody(body)
	}
}

// WithTransport устанавливает транспорт (UDP, TCP)
func WithTransport(transport string) RequestOpt {
	return func(req *sip.Request) {
		if transport == "" {
			return
		}
		req.SetTransport(transport)
	}
}

package handler

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

const maxBodySize = 1 << 20

// render encodes a response body into a fresh slice.
func render(encode func(e *jx.Encoder)) []byte {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	encode(e)
	return append([]byte(nil), e.Bytes()...)
}

func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	writeRaw(w, status, render(encode))
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func errorBody(status int, msg string) []byte {
	return render(func(e *jx.Encoder) {
		e.ObjStart()
		e.Field("code", func(e *jx.Encoder) { e.Int(status) })
		e.Field("message", func(e *jx.Encoder) { e.Str(msg) })
		e.ObjEnd()
	})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeRaw(w, status, errorBody(status, msg))
}

// decodeObject walks the top-level JSON object of the request body.
func decodeObject(r *http.Request, field func(d *jx.Decoder, key string) error) error {
	d := jx.Decode(io.LimitReader(r.Body, maxBodySize), 4096)
	if err := d.Obj(field); err != nil {
		return errors.Wrap(err, "invalid request body")
	}
	return nil
}

// money writes d as a JSON number with two decimals.
func money(e *jx.Encoder, d decimal.Decimal) {
	e.Num(jx.Num(d.StringFixed(2)))
}

func timestamp(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339))
}

func parseID(s string) (int64, bool) {
	id, err := strconv.ParseInt(s, 10, 64)
	return id, err == nil && id > 0
}

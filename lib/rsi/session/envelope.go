package session

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"gorsi/lib/rsi/rsierr"
)

// CodeMultiStepRequired is the envelope code sent when a login needs a two-factor code.
const CodeMultiStepRequired = "ErrMultiStepRequired"

// Int decodes a json number that the server sometimes sends as a string or a bool.
type Int int

func (i *Int) UnmarshalJSON(buff []byte) error {
	buff = bytes.TrimSpace(buff)
	switch {
	case bytes.Equal(buff, []byte("null")):
		*i = 0
		return nil
	case bytes.Equal(buff, []byte("true")):
		*i = 1
		return nil
	case bytes.Equal(buff, []byte("false")):
		*i = 0
		return nil
	}

	text := string(buff)
	if len(buff) > 0 && buff[0] == '"' {
		err := json.Unmarshal(buff, &text)
		if err != nil {
			return err
		}
		if text == "" {
			*i = 0
			return nil
		}
	}
	value, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return fmt.Errorf("decode int: %w", err)
	}
	*i = Int(value)
	return nil
}

// Envelope is the wrapper around every account api response.
type Envelope struct {
	Success Int             `json:"success"`
	Code    string          `json:"code"`
	Msg     string          `json:"msg"`
	Data    json.RawMessage `json:"data"`
}

func (e Envelope) Ok() bool {
	return e.Success == 1
}

// DecodeData unmarshals the data field of the envelope into out.
func (e Envelope) DecodeData(out any) error {
	if len(e.Data) == 0 || bytes.Equal(e.Data, []byte("null")) {
		return fmt.Errorf("envelope has no data")
	}
	return json.Unmarshal(e.Data, out)
}

// DecodeEnvelope parses an api response body, a body that is not an envelope is a
// ProtocolError.
func DecodeEnvelope(endpoint string, body []byte) (Envelope, error) {
	var env Envelope
	err := json.Unmarshal(body, &env)
	if err != nil {
		return Envelope{}, rsierr.NewProtocolError(endpoint, "decode envelope", body, err)
	}
	return env, nil
}

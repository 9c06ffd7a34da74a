// Package validation holds the transfer-validation domain: the pending
// request record, its wire form, and the change notifications emitted when
// the local view of pending validations moves.
package validation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// ID is the server-assigned identifier of a validation request
type ID int64

// String implements fmt.Stringer
func (id ID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// UnmarshalJSON accepts both numeric and quoted ids
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || string(data) == "null" {
		*id = 0
		return nil
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid validation id %q: %w", data, err)
	}
	*id = ID(n)
	return nil
}

// ParseID parses an id from a path parameter
func ParseID(s string) (ID, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, NewDomainError(CodeInvalidInput, fmt.Sprintf("invalid validation id %q", s))
	}
	return ID(n), nil
}

// Estado is the lifecycle state of a validation request
type Estado string

const (
	EstadoPending    Estado = "pending"
	EstadoProcessing Estado = "processing"
	EstadoApproved   Estado = "approved"
	EstadoRejected   Estado = "rejected"
	EstadoCancelled  Estado = "cancelled"
)

// IsTerminal reports whether no further transitions are permitted
func (e Estado) IsTerminal() bool {
	return e == EstadoApproved || e == EstadoRejected || e == EstadoCancelled
}

// ValidationRequest is a cash transfer awaiting manual administrator validation
type ValidationRequest struct {
	ID                 ID              `json:"id"`
	Cajero             string          `json:"cajero"`
	Cliente            string          `json:"cliente,omitempty"`
	Monto              decimal.Decimal `json:"monto"`
	CuentaDestino      string          `json:"cuenta_destino"`
	Referencia         string          `json:"referencia"`
	NumeroVale         string          `json:"numero_vale"`
	Estado             Estado          `json:"estado"`
	CajeroDesconectado bool            `json:"cajeroDesconectado"`
	Mensaje            string          `json:"mensaje,omitempty"`
	Timestamp          time.Time       `json:"timestamp"`
}

// IsProcessing reports whether a local decision is outstanding for the request
func (r ValidationRequest) IsProcessing() bool {
	return r.Estado == EstadoProcessing
}

// Entry is a validation request as delivered by the server, either in a
// push event or in a snapshot. Pointer fields distinguish "absent" from
// an explicit zero value.
type Entry struct {
	ID                 ID              `json:"id" validate:"gt=0"`
	Cajero             string          `json:"cajero"`
	Cliente            string          `json:"cliente"`
	Monto              decimal.Decimal `json:"monto" validate:"gte=0"`
	CuentaDestino      string          `json:"cuenta_destino"`
	Referencia         string          `json:"referencia"`
	NumeroVale         string          `json:"numero_vale"`
	CajeroDesconectado *bool           `json:"cajeroDesconectado,omitempty"`
	Mensaje            *string         `json:"mensaje,omitempty"`
	AgeSeconds         *float64        `json:"tiempo_espera,omitempty" validate:"omitempty,gte=0"`
	CreatedAt          *time.Time      `json:"timestamp,omitempty"`
}

// MaxReportedAge caps tiempo_espera. Older reports are stamped this old.
const MaxReportedAge = 30 * 24 * time.Hour

// WithAbsoluteTime converts a server-reported age into a creation instant
// relative to fetchedAt. Entries already carrying a timestamp are unchanged.
func (e Entry) WithAbsoluteTime(fetchedAt time.Time) Entry {
	if e.CreatedAt != nil || e.AgeSeconds == nil {
		return e
	}
	created := fetchedAt.Add(-reportedAge(*e.AgeSeconds))
	e.CreatedAt = &created
	return e
}

// reportedAge keeps the float to Duration conversion inside int64 range
func reportedAge(seconds float64) time.Duration {
	switch {
	case math.IsNaN(seconds) || seconds <= 0:
		return 0
	case seconds >= MaxReportedAge.Seconds():
		return MaxReportedAge
	}
	return time.Duration(seconds * float64(time.Second))
}

// ToRequest builds the pending record. Entries without a creation instant
// are stamped with arrivedAt.
func (e Entry) ToRequest(arrivedAt time.Time) ValidationRequest {
	e = e.WithAbsoluteTime(arrivedAt)
	req := ValidationRequest{
		ID:            e.ID,
		Cajero:        e.Cajero,
		Cliente:       e.Cliente,
		Monto:         e.Monto,
		CuentaDestino: e.CuentaDestino,
		Referencia:    e.Referencia,
		NumeroVale:    e.NumeroVale,
		Estado:        EstadoPending,
		Timestamp:     arrivedAt,
	}
	if e.CreatedAt != nil {
		req.Timestamp = *e.CreatedAt
	}
	if e.CajeroDesconectado != nil {
		req.CajeroDesconectado = *e.CajeroDesconectado
	}
	if e.Mensaje != nil {
		req.Mensaje = *e.Mensaje
	}
	return req
}

// DecodeEntries decodes a snapshot payload. The server sends either
// {"transferencias_detalle": [...]}, {"success": true, "data": [...]} or a
// bare list.
func DecodeEntries(raw json.RawMessage) ([]Entry, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var list []Entry
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("decode entry list: %w", err)
		}
		return list, nil
	}

	var wrapped struct {
		Success *bool   `json:"success"`
		Message string  `json:"message"`
		Data    []Entry `json:"data"`
		Detalle []Entry `json:"transferencias_detalle"`
	}
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return nil, fmt.Errorf("decode entry envelope: %w", err)
	}
	if wrapped.Success != nil && !*wrapped.Success {
		return nil, NewDomainError(CodeServerRejected, "server reported failure: "+wrapped.Message)
	}
	if wrapped.Detalle != nil {
		return wrapped.Detalle, nil
	}
	if wrapped.Data == nil {
		return []Entry{}, nil
	}
	return wrapped.Data, nil
}

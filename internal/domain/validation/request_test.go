package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestID_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    ID
		wantErr bool
	}{
		{name: "number", input: `42`, want: 42},
		{name: "quoted", input: `"42"`, want: 42},
		{name: "null", input: `null`, want: 0},
		{name: "garbage", input: `"abc"`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var id ID
			err := json.Unmarshal([]byte(tt.input), &id)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, id)
		})
	}
}

func TestParseID(t *testing.T) {
	id, err := ParseID("7")
	require.NoError(t, err)
	assert.Equal(t, ID(7), id)

	_, err = ParseID("0")
	assert.Equal(t, CodeInvalidInput, CodeOf(err))
	_, err = ParseID("x")
	assert.Error(t, err)
}

func TestEstado_IsTerminal(t *testing.T) {
	assert.False(t, EstadoPending.IsTerminal())
	assert.False(t, EstadoProcessing.IsTerminal())
	assert.True(t, EstadoApproved.IsTerminal())
	assert.True(t, EstadoRejected.IsTerminal())
	assert.True(t, EstadoCancelled.IsTerminal())
}

func TestEntry_ToRequest(t *testing.T) {
	fetchedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	age := 90.0
	flag := true
	msg := "cajero sin conexión"

	t.Run("age becomes absolute timestamp", func(t *testing.T) {
		e := Entry{ID: 1, Monto: decimal.NewFromInt(5000), AgeSeconds: &age}
		req := e.WithAbsoluteTime(fetchedAt).ToRequest(fetchedAt.Add(time.Hour))
		assert.Equal(t, fetchedAt.Add(-90*time.Second), req.Timestamp)
		assert.Equal(t, EstadoPending, req.Estado)
	})

	t.Run("huge age is clamped", func(t *testing.T) {
		for _, secs := range []float64{1e20, math.MaxFloat64, math.Inf(1)} {
			secs := secs
			e := Entry{ID: 1, AgeSeconds: &secs}
			got := e.ToRequest(fetchedAt).Timestamp
			assert.Equal(t, fetchedAt.Add(-MaxReportedAge), got, "age %g", secs)
			assert.True(t, got.Before(fetchedAt))
		}
	})

	t.Run("non-finite or negative age falls back to fetch time", func(t *testing.T) {
		for _, secs := range []float64{math.NaN(), -5} {
			secs := secs
			e := Entry{ID: 1, AgeSeconds: &secs}
			assert.Equal(t, fetchedAt, e.ToRequest(fetchedAt).Timestamp)
		}
	})

	t.Run("explicit timestamp wins over age", func(t *testing.T) {
		created := fetchedAt.Add(-time.Minute)
		e := Entry{ID: 1, AgeSeconds: &age, CreatedAt: &created}
		assert.Equal(t, created, e.ToRequest(fetchedAt).Timestamp)
	})

	t.Run("arrival time when nothing reported", func(t *testing.T) {
		e := Entry{ID: 2}
		assert.Equal(t, fetchedAt, e.ToRequest(fetchedAt).Timestamp)
	})

	t.Run("flags copied when present", func(t *testing.T) {
		e := Entry{ID: 3, CajeroDesconectado: &flag, Mensaje: &msg}
		req := e.ToRequest(fetchedAt)
		assert.True(t, req.CajeroDesconectado)
		assert.Equal(t, msg, req.Mensaje)
	})
}

func TestEntry_Validate(t *testing.T) {
	neg := -1.0
	tests := []struct {
		name    string
		entry   Entry
		wantErr bool
	}{
		{name: "valid", entry: Entry{ID: 1, Monto: decimal.NewFromInt(12000)}},
		{name: "zero amount", entry: Entry{ID: 1, Monto: decimal.Zero}},
		{name: "missing id", entry: Entry{Monto: decimal.NewFromInt(1)}, wantErr: true},
		{name: "negative amount", entry: Entry{ID: 1, Monto: decimal.NewFromInt(-5)}, wantErr: true},
		{name: "negative age", entry: Entry{ID: 1, AgeSeconds: &neg}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.entry.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, CodeInvalidInput, CodeOf(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestDecodeEntries(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantIDs []ID
		wantErr bool
	}{
		{name: "detalle envelope", payload: `{"transferencias_detalle":[{"id":1,"monto":"5000"}]}`, wantIDs: []ID{1}},
		{name: "success envelope", payload: `{"success":true,"data":[{"id":2,"monto":12000},{"id":3,"monto":1}]}`, wantIDs: []ID{2, 3}},
		{name: "bare list", payload: `[{"id":"4","monto":10}]`, wantIDs: []ID{4}},
		{name: "empty envelope", payload: `{"success":true,"data":[]}`, wantIDs: []ID{}},
		{name: "success false", payload: `{"success":false,"message":"token vencido"}`, wantErr: true},
		{name: "malformed", payload: `{"data":`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := DecodeEntries(json.RawMessage(tt.payload))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			ids := make([]ID, 0, len(entries))
			for _, e := range entries {
				ids = append(ids, e.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestDomainError_Is(t *testing.T) {
	wrapped := fmt.Errorf("decide 5: %w", ErrDecisionInFlight)
	assert.True(t, errors.Is(wrapped, ErrDecisionInFlight))
	assert.False(t, errors.Is(wrapped, ErrReasonRequired))
	assert.Equal(t, CodeInFlight, CodeOf(wrapped))
	assert.Empty(t, CodeOf(errors.New("plain")))
}

func TestChangeSet_Helpers(t *testing.T) {
	cs := ChangeSet{Changes: []Change{
		{Kind: ChangeAdded, ID: 1, Request: ValidationRequest{ID: 1}},
		{Kind: ChangeRemoved, ID: 2, Reason: RemovalProcessed},
		{Kind: ChangeUpdated, ID: 3},
	}}
	require.Len(t, cs.Added(), 1)
	assert.Equal(t, ID(1), cs.Added()[0].ID)
	require.Len(t, cs.Removed(), 1)
	assert.Equal(t, EstadoCancelled, RemovalCancelled.Terminal())
}

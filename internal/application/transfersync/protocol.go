package transfersync

import (
	"encoding/json"
	"strings"

	"github.com/jerson21/santitelas-frontend-sub003/internal/domain/validation"
)

// Client -> server events
const (
	EventJoinAdmin       = "join_admin"
	EventRequestPending  = "obtener_transferencias_pendientes"
	EventRespondDecision = "responder_validacion_transferencia"
)

// Server -> client events
const (
	EventPendingList         = "lista_transferencias_pendientes"
	EventNewPending          = "nueva_transferencia_pendiente"
	EventProcessed           = "transferencia_procesada"
	EventCancelled           = "transferencia_cancelada"
	EventCashierDisconnected = "cajero_desconectado"
	EventError               = "error"
)

// Events emitted by the cashier side of the protocol. The admin client
// never sends them but may see them relayed.
const (
	EventPeerRequest = "solicitar_validacion_transferencia"
	EventPeerCancel  = "cancelar_validacion_transferencia"
)

// JoinAdminPayload registers the connection as an administrator observer
type JoinAdminPayload struct {
	Usuario string `json:"usuario"`
	Rol     string `json:"rol"`
}

// DecisionPayload carries an approve/reject decision
type DecisionPayload struct {
	ID            validation.ID `json:"id"`
	Validada      bool          `json:"validada"`
	Observaciones string        `json:"observaciones"`
	AdminUsuario  string        `json:"admin_usuario"`
}

type idPayload struct {
	ID     validation.ID `json:"id"`
	Motivo string        `json:"motivo,omitempty"`
}

type cashierDisconnectedPayload struct {
	ID      validation.ID `json:"id"`
	Mensaje string        `json:"mensaje"`
	// Desconectado defaults to true when absent
	Desconectado *bool `json:"cajeroDesconectado,omitempty"`
}

type errorPayload struct {
	ID      validation.ID `json:"id,omitempty"`
	Message string        `json:"message,omitempty"`
	Mensaje string        `json:"mensaje,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// text returns the first non-empty description the server sent
func (p errorPayload) text() string {
	for _, s := range []string{p.Mensaje, p.Message, p.Error} {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return "server error"
}

func decodeErrorPayload(data json.RawMessage) errorPayload {
	var p errorPayload
	if err := json.Unmarshal(data, &p); err != nil {
		// plain string errors are common
		var s string
		if json.Unmarshal(data, &s) == nil {
			p.Message = s
		}
	}
	return p
}

package api

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrSessionExpired is wrapped by the error returned when a 401 could not
// be recovered by refreshing the token.
var ErrSessionExpired = errors.New("api: session expired")

// APIError is a failed call. StatusCode is 0 when no response arrived.
type APIError struct {
	Message    string
	StatusCode int
	RawBody    []byte
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("api: %s", e.Message)
	}
	return fmt.Sprintf("api: %d %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error { return e.Err }

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.StatusCode
	}
	return 0
}

const (
	msgGeneric = "Si è verificato un errore imprevisto. Riprova più tardi."
	msgNetwork = "Impossibile contattare il server. Verifica la connessione."
)

var statusMessages = map[int]string{
	http.StatusBadRequest:          "Richiesta non valida.",
	http.StatusUnauthorized:        "Sessione scaduta. Effettua nuovamente l'accesso.",
	http.StatusForbidden:           "Non hai i permessi per eseguire questa operazione.",
	http.StatusNotFound:            "Risorsa non trovata.",
	http.StatusConflict:            "La risorsa è stata modificata da un'altra operazione.",
	http.StatusUnprocessableEntity: "I dati inviati non sono validi.",
	http.StatusTooManyRequests:     "Troppe richieste. Riprova tra qualche istante.",
	http.StatusInternalServerError: "Errore interno del server.",
	http.StatusBadGateway:          "Servizio temporaneamente non disponibile.",
	http.StatusServiceUnavailable:  "Servizio non disponibile. Riprova più tardi.",
	http.StatusGatewayTimeout:      "Il server non ha risposto in tempo.",
}

// MessageFor returns the user-facing message for an HTTP status.
func MessageFor(status int) string {
	if m, ok := statusMessages[status]; ok {
		return m
	}
	return msgGeneric
}

func newStatusError(status int, raw []byte) *APIError {
	return &APIError{Message: MessageFor(status), StatusCode: status, RawBody: raw}
}

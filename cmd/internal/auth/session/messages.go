package session

import "affittochiaro/cmd/internal/auth/provider"

const (
	msgNotAuthorized    = "Email o password non corretti"
	msgUserNotConfirmed = "Account non confermato. Controlla la tua email per il codice di verifica"
	msgUsernameExists   = "Esiste già un account con questa email"
	msgCodeMismatch     = "Codice di verifica non valido"
	msgExpiredCode      = "Codice di verifica scaduto. Richiedine uno nuovo"
	msgLimitExceeded    = "Troppi tentativi. Riprova tra qualche minuto"
	msgInvalidPassword  = "La password non rispetta i requisiti di sicurezza"
	msgUserNotFound     = "Nessun account trovato con questa email"
	msgNotConfigured    = "Servizio di autenticazione non configurato"
	msgUnsupported      = "Operazione non supportata dal servizio di autenticazione"
	msgNetwork          = "Impossibile contattare il server. Verifica la connessione"
	msgUnknown          = "Si è verificato un errore. Riprova più tardi"

	msgEmailRequired     = "Inserisci l'indirizzo email"
	msgEmailInvalid      = "Indirizzo email non valido"
	msgPasswordRequired  = "Inserisci la password"
	msgCodeRequired      = "Inserisci il codice di verifica"
	msgRoleInvalid       = "Seleziona il tipo di account (inquilino o agenzia)"
	msgFirstNameRequired = "Inserisci il nome"
	msgLastNameRequired  = "Inserisci il cognome"
	msgAgencyRequired    = "Inserisci il nome dell'agenzia"
	msgPasswordShort     = "La password deve contenere almeno %d caratteri"
	msgPasswordLong      = "La password può contenere al massimo %d caratteri"
	msgPasswordMixed     = "La password deve contenere lettere e numeri"
	msgPasswordWeak      = "La password è troppo semplice"
)

var kindMessages = map[provider.Kind]string{
	provider.KindNotAuthorized:    msgNotAuthorized,
	provider.KindUserNotConfirmed: msgUserNotConfirmed,
	provider.KindUsernameExists:   msgUsernameExists,
	provider.KindCodeMismatch:     msgCodeMismatch,
	provider.KindExpiredCode:      msgExpiredCode,
	provider.KindLimitExceeded:    msgLimitExceeded,
	provider.KindInvalidPassword:  msgInvalidPassword,
	provider.KindUserNotFound:     msgUserNotFound,
	provider.KindNotConfigured:    msgNotConfigured,
	provider.KindUnsupported:      msgUnsupported,
	provider.KindNetwork:          msgNetwork,
	provider.KindUnknown:          msgUnknown,
}

// MessageFor returns the user-facing message for an error kind.
func MessageFor(k provider.Kind) string {
	if m, ok := kindMessages[k]; ok {
		return m
	}
	return msgUnknown
}

package app

import (
	"affittochiaro/cmd/internal/auth/session"
	"affittochiaro/cmd/security/token"
)

// StatusView is the printable, secret-free summary of the agent state.
type StatusView struct {
	Status       string `json:"status"`
	UserID       string `json:"userId,omitempty"`
	Email        string `json:"email,omitempty"`
	Role         string `json:"role,omitempty"`
	Degraded     bool   `json:"degraded,omitempty"`
	PendingEmail string `json:"pendingEmail,omitempty"`
	Error        string `json:"error,omitempty"`

	AccessToken string `json:"accessToken,omitempty"`

	Realtime         string `json:"realtime,omitempty"`
	RealtimeAttempts int    `json:"realtimeAttempts,omitempty"`
}

func (a *App) status() StatusView {
	v := viewOf(a.session.Snapshot())
	if tok := a.creds.AccessToken(); tok != "" {
		v.AccessToken = token.Fingerprint(tok)
	}
	if a.realtime != nil {
		v.Realtime = a.realtime.State().String()
		v.RealtimeAttempts = a.realtime.Attempts()
	}
	return v
}

func viewOf(st session.State) StatusView {
	v := StatusView{Status: string(st.Status), Error: st.ErrorMessage()}
	if st.Session != nil {
		b := st.Session.Info()
		v.UserID = b.ID
		v.Email = b.Email
		v.Role = string(b.Role)
		v.Degraded = b.Degraded
	}
	if st.Pending != nil {
		v.PendingEmail = st.Pending.Email
		v.Role = string(st.Pending.Role)
	}
	return v
}

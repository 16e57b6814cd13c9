package app

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"affittochiaro/cmd/identity"
	"affittochiaro/cmd/internal/auth/session"
	"affittochiaro/cmd/internal/realtime"
	v1 "affittochiaro/contracts/realtime/v1"
)

func statusCommand() command {
	return command{
		name:    "status",
		summary: "restore the stored session and print it",
		flags: func(fs *pflag.FlagSet) {
			fs.Bool("json", false, "print JSON")
		},
		run: func(ctx context.Context, c *cmdEnv) error {
			c.app.Session().CheckSession(ctx)
			return c.printStatus()
		},
	}
}

func loginCommand() command {
	return command{
		name:    "login",
		summary: "sign in with email and password",
		flags: func(fs *pflag.FlagSet) {
			fs.String("email", "", "account email")
			passwordFlags(fs)
			fs.Bool("json", false, "print JSON")
		},
		run: func(ctx context.Context, c *cmdEnv) error {
			pw, err := c.password("password")
			if err != nil {
				return err
			}
			err = c.app.Session().Login(ctx, c.str("email"), pw)
			if errors.Is(err, session.ErrConfirmationRequired) {
				_, _ = fmt.Fprintf(c.out, "Conferma la tua email: usa '%s confirm' con il codice ricevuto.\n", appName)
				return c.printStatus()
			}
			if err != nil {
				return err
			}
			return c.printStatus()
		},
	}
}

func registerCommand() command {
	return command{
		name:    "register",
		summary: "create a tenant or agency account",
		flags: func(fs *pflag.FlagSet) {
			fs.String("email", "", "account email")
			passwordFlags(fs)
			fs.String("role", string(identity.RoleTenant), "tenant or agency")
			fs.String("first-name", "", "first name (tenant)")
			fs.String("last-name", "", "last name (tenant)")
			fs.String("phone", "", "phone number")
			fs.String("city", "", "city")
			fs.String("agency-name", "", "agency name (agency)")
			fs.String("vat-number", "", "VAT number (agency)")
			fs.Bool("json", false, "print JSON")
		},
		run: func(ctx context.Context, c *cmdEnv) error {
			pw, err := c.password("password")
			if err != nil {
				return err
			}
			err = c.app.Session().Register(ctx, session.RegisterParams{
				Email:      c.str("email"),
				Password:   pw,
				Role:       identity.Role(c.str("role")),
				FirstName:  c.str("first-name"),
				LastName:   c.str("last-name"),
				Phone:      c.str("phone"),
				City:       c.str("city"),
				AgencyName: c.str("agency-name"),
				VATNumber:  c.str("vat-number"),
			})
			if err != nil {
				return err
			}
			return c.printStatus()
		},
	}
}

func confirmCommand() command {
	return command{
		name:    "confirm",
		summary: "confirm the email of a new account",
		flags: func(fs *pflag.FlagSet) {
			fs.String("email", "", "account email (defaults to the pending one)")
			fs.String("code", "", "verification code")
			fs.Bool("json", false, "print JSON")
		},
		run: func(ctx context.Context, c *cmdEnv) error {
			if err := c.app.Session().ConfirmEmail(ctx, c.pendingEmail(), c.str("code")); err != nil {
				return err
			}
			return c.printStatus()
		},
	}
}

func resendCommand() command {
	return command{
		name:    "resend",
		summary: "send a new verification code",
		flags: func(fs *pflag.FlagSet) {
			fs.String("email", "", "account email (defaults to the pending one)")
		},
		run: func(ctx context.Context, c *cmdEnv) error {
			if err := c.app.Session().ResendCode(ctx, c.pendingEmail()); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(c.out, "Codice inviato.")
			return nil
		},
	}
}

func logoutCommand() command {
	return command{
		name:    "logout",
		summary: "sign out and forget the stored session",
		flags: func(fs *pflag.FlagSet) {
			fs.Bool("json", false, "print JSON")
		},
		run: func(ctx context.Context, c *cmdEnv) error {
			_ = c.app.Session().Logout(ctx)
			return c.printStatus()
		},
	}
}

func resetPasswordCommand() command {
	return command{
		name:    "reset-password",
		summary: "request a password reset code",
		flags: func(fs *pflag.FlagSet) {
			fs.String("email", "", "account email")
		},
		run: func(ctx context.Context, c *cmdEnv) error {
			if err := c.app.Session().ResetPassword(ctx, c.str("email")); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(c.out, "Se l'account esiste, riceverai un codice via email.")
			return nil
		},
	}
}

func confirmResetCommand() command {
	return command{
		name:    "confirm-reset",
		summary: "set a new password with a reset code",
		flags: func(fs *pflag.FlagSet) {
			fs.String("email", "", "account email")
			fs.String("code", "", "reset code")
			passwordFlags(fs)
		},
		run: func(ctx context.Context, c *cmdEnv) error {
			pw, err := c.password("password")
			if err != nil {
				return err
			}
			if err := c.app.Session().ConfirmResetPassword(ctx, c.str("email"), c.str("code"), pw); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(c.out, "Password aggiornata.")
			return nil
		},
	}
}

func getCommand() command {
	return command{
		name:    "get",
		args:    "<path>",
		summary: "GET an API path with the stored credentials",
		run: func(ctx context.Context, c *cmdEnv) error {
			if c.flags.NArg() != 1 {
				return fmt.Errorf("%w: get needs exactly one path", ErrUsage)
			}
			p, err := c.app.API()
			if err != nil {
				return err
			}
			raw, err := p.Get(ctx, c.flags.Arg(0))
			if err != nil {
				return err
			}
			if len(raw) == 0 {
				return nil
			}
			return printJSON(c.out, raw)
		},
	}
}

func listenCommand() command {
	return command{
		name:    "listen",
		summary: "open the realtime channel and print events",
		flags: func(fs *pflag.FlagSet) {
			fs.StringSlice("type", nil, "event types to print besides connection status (repeatable)")
			fs.Duration("for", 0, "stop after this long (default: until interrupted)")
		},
		run: func(ctx context.Context, c *cmdEnv) error {
			conn, err := c.app.Realtime()
			if err != nil {
				return err
			}

			if d, _ := c.flags.GetDuration("for"); d > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, d)
				defer cancel()
			}

			// Handlers run one at a time, so the encoder needs no lock.
			enc := json.NewEncoder(c.out)
			subscribe := func(typ string) {
				conn.Subscribe(typ, func(p json.RawMessage) {
					_ = enc.Encode(v1.Envelope{Type: typ, Payload: p})
				})
			}
			subscribe(v1.TypeConnection)
			subscribe(v1.TypeError)
			types, _ := c.flags.GetStringSlice("type")
			for _, typ := range types {
				subscribe(typ)
			}

			switch err := conn.Connect(ctx); {
			case errors.Is(err, realtime.ErrNoToken):
				return fmt.Errorf("%w: sign in first", err)
			case err != nil:
				// A reconnect is already scheduled; keep listening.
				log := c.app.Logger()
				log.Warn().Err(err).Msg("listen.connect.fail")
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return c.app.ServeMetrics(gctx) })
			g.Go(func() error {
				<-gctx.Done()
				conn.Disconnect()
				return nil
			})
			return g.Wait()
		},
	}
}

func sendCommand() command {
	return command{
		name:    "send",
		args:    "<type> [json-payload]",
		summary: "send one realtime event",
		run: func(ctx context.Context, c *cmdEnv) error {
			if c.flags.NArg() < 1 || c.flags.NArg() > 2 {
				return fmt.Errorf("%w: send needs a type and an optional JSON payload", ErrUsage)
			}
			var payload any
			if c.flags.NArg() == 2 {
				raw := json.RawMessage(c.flags.Arg(1))
				if !json.Valid(raw) {
					return fmt.Errorf("%w: payload is not valid JSON", ErrUsage)
				}
				payload = raw
			}

			conn, err := c.app.Realtime()
			if err != nil {
				return err
			}
			if err := conn.Connect(ctx); err != nil {
				return err
			}
			defer conn.Disconnect()
			return conn.Send(ctx, c.flags.Arg(0), payload)
		},
	}
}

func passwordFlags(fs *pflag.FlagSet) {
	fs.String("password", "", "password (prefer --password-stdin)")
	fs.Bool("password-stdin", false, "read the password from the first line of stdin")
}

func (c *cmdEnv) str(name string) string {
	v, _ := c.flags.GetString(name)
	return v
}

func (c *cmdEnv) password(name string) (string, error) {
	if fromStdin, _ := c.flags.GetBool(name + "-stdin"); !fromStdin {
		return c.str(name), nil
	}
	line, err := bufio.NewReader(c.in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// pendingEmail falls back to the email of a sign-up awaiting confirmation.
func (c *cmdEnv) pendingEmail() string {
	if e := c.str("email"); e != "" {
		return e
	}
	if p := c.app.Session().Snapshot().Pending; p != nil {
		return p.Email
	}
	return ""
}

func (c *cmdEnv) printStatus() error {
	v := c.app.status()
	if asJSON, _ := c.flags.GetBool("json"); asJSON {
		return json.NewEncoder(c.out).Encode(v)
	}

	var b strings.Builder
	line := func(k, v string) {
		if v != "" {
			fmt.Fprintf(&b, "%-10s %s\n", k+":", v)
		}
	}
	line("status", v.Status)
	line("user", v.UserID)
	line("email", v.Email)
	line("role", v.Role)
	if v.Degraded {
		line("profile", "minimal")
	}
	line("pending", v.PendingEmail)
	line("token", v.AccessToken)
	line("realtime", v.Realtime)
	line("error", v.Error)
	_, err := io.WriteString(c.out, b.String())
	return err
}

func printJSON(out io.Writer, raw json.RawMessage) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		_, err = fmt.Fprintln(out, string(raw))
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

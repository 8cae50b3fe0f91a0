// Package admin implements tokenctl, the operator tool for inspecting
// tokens and force-revoking a user's refresh family.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dmitrijs2005/tokenkeeper/internal/logging"
	"github.com/dmitrijs2005/tokenkeeper/internal/server"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/audit"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/auth"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/config"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/services"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/term"
)

const usage = `usage:
  tokenctl inspect [-k key] <token>
  tokenctl revoke [config flags] <userID>`

// SecretKeyEnv names the environment variable inspect reads the key from.
const SecretKeyEnv = "TOKENKEEPER_SECRET_KEY"

var errUsage = errors.New(usage)

// test seams
var (
	readPassword = term.ReadPassword
	getenv       = os.Getenv
	openRevoker  = openSessionRevoker
)

type revoker interface {
	RevokeUser(ctx context.Context, userID string) (int64, error)
}

// Run executes one tokenctl command and returns the process exit code.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage)
		return 2
	}

	var err error
	switch args[0] {
	case "inspect":
		err = inspect(ctx, args[1:], stdout, stderr)
	case "revoke":
		err = revoke(ctx, args[1:], stdout)
	case "help", "-h", "--help":
		fmt.Fprintln(stdout, usage)
		return 0
	default:
		err = fmt.Errorf("unknown command %q\n%w", args[0], errUsage)
	}

	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		if errors.Is(err, errUsage) {
			return 2
		}
		return 1
	}
	return 0
}

type inspection struct {
	Status string         `json:"status"`
	Header map[string]any `json:"header,omitempty"`
	Claims map[string]any `json:"claims,omitempty"`
}

// inspect prints the validation status of a token together with its
// decoded header and claims. Claims are shown even for invalid tokens.
func inspect(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	key := fs.String("k", "", "HMAC signing key")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%v\n%w", err, errUsage)
	}
	if fs.NArg() != 1 {
		return errUsage
	}
	token := strings.TrimSpace(fs.Arg(0))

	secret, err := signingKey(*key, stderr)
	if err != nil {
		return err
	}

	codec, err := auth.NewCodec(secret)
	clear(secret)
	if err != nil {
		return err
	}
	validator := auth.NewValidator(codec, logging.Nop{})

	out := inspection{Status: validator.Validate(ctx, token).String()}
	claims := jwt.MapClaims{}
	if parsed, _, err := jwt.NewParser().ParseUnverified(token, claims); err == nil {
		out.Header = parsed.Header
		out.Claims = claims
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// signingKey resolves the key from the flag, the environment or a hidden
// terminal prompt, in that order.
func signingKey(flagValue string, prompt io.Writer) ([]byte, error) {
	if flagValue != "" {
		return []byte(flagValue), nil
	}
	if v := getenv(SecretKeyEnv); v != "" {
		return []byte(v), nil
	}

	fmt.Fprint(prompt, "Signing key: ")
	key, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(prompt)
	if err != nil {
		return nil, fmt.Errorf("read signing key: %w", err)
	}
	if len(key) == 0 {
		return nil, errors.New("signing key is required")
	}
	return key, nil
}

// revoke force-logs a user out. The user id is the last argument; the rest
// are server config flags (-c, -d, -m, ...).
func revoke(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) == 0 || strings.HasPrefix(args[len(args)-1], "-") {
		return errUsage
	}
	userID := args[len(args)-1]

	r, closeFn, err := openRevoker(ctx, args[:len(args)-1])
	if err != nil {
		return err
	}
	defer closeFn()

	n, err := r.RevokeUser(ctx, userID)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "revoked %d refresh token(s) of user %s\n", n, userID)
	return nil
}

// openSessionRevoker builds a session service over the configured store.
func openSessionRevoker(ctx context.Context, args []string) (revoker, func(), error) {
	cfg, err := config.LoadConfig(ctx, args)
	if err != nil {
		return nil, nil, err
	}

	codec, err := auth.NewCodec([]byte(cfg.SecretKey))
	if err != nil {
		return nil, nil, err
	}

	store, err := server.OpenStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	logger := logging.NewJSONLogger(os.Stderr, cfg.LogLevel).With("module", "tokenctl")
	sessions := services.NewSessionService(store.Families, codec, nil, audit.NewLogSink(logger), logger, cfg)
	return sessions, store.Close, nil
}

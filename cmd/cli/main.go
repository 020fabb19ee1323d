// Command ifcoins is a CLI client for the economy service.
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	grpcserver "github.com/and161185/ifcoins/internal/server/grpc"
)

// ---- config/token store ----

type tokenFile struct {
	AccessToken string    `json:"access_token"`
	UserID      string    `json:"user_id"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "ifcoins")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "ifcoins")
}

func tokenPath() string { return filepath.Join(cfgDir(), "token.json") }

func saveToken(tf tokenFile) error {
	if err := os.MkdirAll(cfgDir(), 0o700); err != nil {
		return err
	}
	b, err := json.MarshalIndent(tf, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(tokenPath(), b, 0o600)
}

func loadToken() (tokenFile, error) {
	b, err := os.ReadFile(tokenPath())
	if err != nil {
		return tokenFile{}, err
	}
	var tf tokenFile
	if err := json.Unmarshal(b, &tf); err != nil {
		return tokenFile{}, err
	}
	if tf.AccessToken == "" || time.Now().After(tf.ExpiresAt) {
		return tokenFile{}, errors.New("no valid token (run `ifcoins token` first)")
	}
	return tf, nil
}

// ---- grpc dial ----

func loadTLS(caPath string, skipVerify bool) (credentials.TransportCredentials, error) {
	if skipVerify {
		return credentials.NewTLS(&tls.Config{InsecureSkipVerify: true}), nil //nolint:gosec // dev flag
	}
	if caPath == "" {
		return credentials.NewClientTLSFromCert(nil, ""), nil
	}
	pem, err := os.ReadFile(caPath)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("bad CA cert")
	}
	return credentials.NewTLS(&tls.Config{RootCAs: pool}), nil
}

type dialOpts struct {
	addr       string
	caPath     string
	skipVerify bool
	plaintext  bool
}

func dial(o dialOpts) (*grpc.ClientConn, error) {
	creds := insecure.NewCredentials()
	if !o.plaintext {
		var err error
		if creds, err = loadTLS(o.caPath, o.skipVerify); err != nil {
			return nil, err
		}
	}
	return grpc.NewClient(o.addr, grpc.WithTransportCredentials(creds))
}

func usage() {
	fmt.Fprintf(os.Stderr, `ifcoins CLI
Usage:
  ifcoins -addr HOST:PORT [-cacert file | -insecure | -plaintext] <cmd> [args]

Commands:
  version
  token       -sub <user id> [-role student|teacher|admin] [-email e] [-ttl 1h] [-key k]   (saves token)
  me | collection | catalog | packs | events
  buy         <pack id>
  propose     -to <user id> [-offer id=qty,...] [-request id=qty,...] [-offer-coins n] [-request-coins n]
  accept      <trade id>
  reject      <trade id>
  cancel      <trade id>
  trade       <trade id>
  trades      [-incoming] [-status pending|accepted|rejected|cancelled]
  reward      -target <registration|class> -coins <1..10> -reason <text>
  rewards     [-student <user id>]
  leaderboard [-kind coins|collection] [-limit n]
`)
	os.Exit(2)
}

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	o := dialOpts{}
	flag.StringVar(&o.addr, "addr", "localhost:8443", "server addr")
	flag.StringVar(&o.caPath, "cacert", "", "CA cert (PEM)")
	flag.BoolVar(&o.skipVerify, "insecure", false, "skip cert verify (dev)")
	flag.BoolVar(&o.plaintext, "plaintext", false, "no TLS (dev)")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}
	cmd, args := flag.Arg(0), flag.Args()[1:]

	switch cmd {
	case "version":
		fmt.Printf("ifcoins %s (%s)\n", version, buildDate)
		return
	case "token":
		if err := mintToken(os.Stdout, args); err != nil {
			fail(err)
		}
		return
	}

	token := ""
	if tf, err := loadToken(); err == nil {
		token = tf.AccessToken
	}
	conn, err := dial(o)
	if err != nil {
		fail(err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a := &app{out: os.Stdout, client: grpcserver.NewClient(conn, token)}
	if err := a.run(ctx, cmd, args); err != nil {
		if errors.Is(err, errUsage) {
			usage()
		}
		fail(err)
	}
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}

/*
main.go - Command-line client for the kudo bank

USAGE:
  kudo keygen [-key kudo_key.pem]
  kudo whoami [-key kudo_key.pem]
  kudo give   [-key kudo_key.pem] [-server URL] <principal>
  kudo get    [-server URL] <principal>
  kudo top    [-server URL] [-limit N]

  keygen refuses to overwrite an existing key file. whoami and give create
  the key file on first use. `give` signs the request with it.
*/
package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/warp/kudobank/api"
	"github.com/warp/kudobank/identity"
	"github.com/warp/kudobank/kudos"
)

const (
	defaultKeyFile = "kudo_key.pem"
	defaultServer  = "http://localhost:8080"
)

var httpClient = &http.Client{Timeout: 15 * time.Second}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "keygen":
		err = runKeygen(args)
	case "whoami":
		err = runWhoami(args)
	case "give":
		err = runGive(args)
	case "get":
		err = runGet(args)
	case "top":
		err = runTop(args)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "kudo: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: kudo <keygen|whoami|give|get|top> [flags] [principal]")
}

func runKeygen(args []string) error {
	fs := flag.NewFlagSet("keygen", flag.ExitOnError)
	keyPath := fs.String("key", defaultKeyFile, "ed25519 key file")
	fs.Parse(args)

	if _, err := os.Stat(*keyPath); err == nil {
		return fmt.Errorf("key file %s already exists (use whoami to print its principal)", *keyPath)
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}

	id, err := identity.Generate()
	if err != nil {
		return err
	}
	if err := id.Save(*keyPath); err != nil {
		return err
	}
	fmt.Println(id.Principal())
	return nil
}

func runWhoami(args []string) error {
	fs := flag.NewFlagSet("whoami", flag.ExitOnError)
	keyPath := fs.String("key", defaultKeyFile, "ed25519 key file")
	fs.Parse(args)

	id, err := identity.LoadOrCreate(*keyPath)
	if err != nil {
		return err
	}
	fmt.Println(id.Principal())
	return nil
}

func runGive(args []string) error {
	fs := flag.NewFlagSet("give", flag.ExitOnError)
	keyPath := fs.String("key", defaultKeyFile, "ed25519 key file")
	server := fs.String("server", defaultServer, "kudo bank URL")
	fs.Parse(args)

	if fs.NArg() != 1 {
		return fmt.Errorf("give needs exactly one recipient principal")
	}
	to, err := kudos.ParsePrincipal(fs.Arg(0))
	if err != nil {
		return err
	}

	id, err := identity.LoadOrCreate(*keyPath)
	if err != nil {
		return err
	}

	proof := id.ProveGive(to)
	body, err := json.Marshal(api.GiveKudosRequest{
		From:      id.Principal().String(),
		To:        to.String(),
		Nonce:     proof.Nonce,
		IssuedAt:  proof.IssuedAt.UTC().Format(time.RFC3339),
		Signature: identity.SignatureHex(proof),
	})
	if err != nil {
		return err
	}

	var out api.KudosDTO
	if err := call(http.MethodPost, *server+"/api/kudos", bytes.NewReader(body), http.StatusCreated, &out); err != nil {
		return err
	}
	fmt.Printf("%s now has %d kudos\n", out.Principal, out.Count)
	return nil
}

func runGet(args []string) error {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	server := fs.String("server", defaultServer, "kudo bank URL")
	fs.Parse(args)

	if fs.NArg() != 1 {
		return fmt.Errorf("get needs exactly one principal")
	}

	var out api.KudosDTO
	if err := call(http.MethodGet, *server+"/api/kudos/"+url.PathEscape(fs.Arg(0)), nil, http.StatusOK, &out); err != nil {
		return err
	}
	fmt.Println(out.Count)
	return nil
}

func runTop(args []string) error {
	fs := flag.NewFlagSet("top", flag.ExitOnError)
	server := fs.String("server", defaultServer, "kudo bank URL")
	limit := fs.Int("limit", 10, "number of principals to show (0 for all)")
	fs.Parse(args)

	var out api.LeaderboardDTO
	if err := call(http.MethodGet, *server+"/api/kudos?limit="+strconv.Itoa(*limit), nil, http.StatusOK, &out); err != nil {
		return err
	}
	for _, s := range out.Standings {
		fmt.Printf("%3d  %-64s  %10d  %6s%%\n", s.Rank, s.Principal, s.Count, s.Share)
	}
	return nil
}

func call(method, target string, body io.Reader, want int, out any) error {
	req, err := http.NewRequest(method, target, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		var e api.ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&e) == nil && e.Error != "" {
			return fmt.Errorf("%s: %s", e.Error, strings.TrimSpace(e.Details))
		}
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

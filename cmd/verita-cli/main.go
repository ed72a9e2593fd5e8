package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dverna/verita/internal/api"
	"github.com/dverna/verita/internal/crypto"
	"github.com/dverna/verita/internal/policy"
)

const defaultAddr = "http://localhost:8080"

func main() {
	exitFn(run(os.Args, os.Stdout, os.Stderr))
}

var exitFn = os.Exit

func run(args []string, stdout io.Writer, stderr io.Writer) int {
	if len(args) < 2 {
		usage(stderr)
		return 2
	}

	switch args[1] {
	case "review":
		return handleReview(args[2:], stdout, stderr)
	case "decide":
		return handleDecide(args[2:], stdout, stderr)
	case "verify":
		return handleVerify(args[2:], stdout, stderr)
	case "pack":
		return handlePack(args[2:], stdout, stderr)
	case "policy":
		return handlePolicy(args[2:], stdout, stderr)
	case "keygen":
		return handleKeygen(args[2:], stdout, stderr)
	default:
		usage(stderr)
		return 2
	}
}

func handleReview(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("review", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", envOrDefault("VERITA_ADDR", defaultAddr), "Verita API address")
	local := fs.Bool("local", false, "run the engine in-process instead of calling the API")
	policyPath := fs.String("policy", os.Getenv("VERITA_POLICY_PATH"), "policy file for --local runs")
	jsonOut := fs.Bool("json", false, "print raw JSON response")
	token := fs.String("token", envOrDefault("VERITA_TOKEN", os.Getenv("VERITA_DEV_TOKEN")), "bearer token")
	if err := fs.Parse(args); err != nil {
		fs.Usage()
		return 2
	}

	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "review requires <bundle.json>")
		fs.Usage()
		return 2
	}
	// #nosec G304 -- path comes from the command line.
	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}

	if *local {
		return reviewLocal(data, *policyPath, *jsonOut, stdout, stderr)
	}

	respBody, status, err := httpPost(http.DefaultClient, *addr+"/v1/reviews", *token, data)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	if status != http.StatusOK {
		fmt.Fprintf(stderr, "review failed: %s\n", strings.TrimSpace(string(respBody)))
		return 1
	}

	if *jsonOut {
		_, _ = stdout.Write(respBody)
		return 0
	}

	var payload struct {
		RunID          string `json:"run_id"`
		ReceiptID      string `json:"receipt_id"`
		Recommendation string `json:"recommendation"`
	}
	if err := json.Unmarshal(respBody, &payload); err != nil {
		fmt.Fprintln(stderr, "invalid response:", err)
		return 1
	}
	fmt.Fprintf(stdout, "recommendation=%s run_id=%s receipt_id=%s\n", payload.Recommendation, payload.RunID, payload.ReceiptID)
	return 0
}

func reviewLocal(data []byte, policyPath string, jsonOut bool, stdout io.Writer, stderr io.Writer) int {
	loaded := policy.Default()
	if policyPath != "" {
		l, err := policy.Load(policyPath)
		if err != nil {
			fmt.Fprintln(stderr, err.Error())
			return 1
		}
		loaded = l
	}

	svc, err := api.NewDevService(loaded)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	resp, err := svc.Submit(context.Background(), data, time.Now().UTC())
	if err != nil {
		fmt.Fprintf(stderr, "review failed: %v\n", err)
		return 1
	}

	if jsonOut {
		out, err := json.Marshal(resp)
		if err != nil {
			fmt.Fprintln(stderr, err.Error())
			return 1
		}
		_, _ = stdout.Write(append(out, '\n'))
		return 0
	}
	fmt.Fprintf(stdout, "recommendation=%s run_id=%s receipt_id=%s\n", resp.Recommendation, resp.RunID, resp.ReceiptID)
	return 0
}

func handleDecide(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("decide", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", envOrDefault("VERITA_ADDR", defaultAddr), "Verita API address")
	jsonOut := fs.Bool("json", false, "print raw JSON response")
	token := fs.String("token", envOrDefault("VERITA_TOKEN", os.Getenv("VERITA_DEV_TOKEN")), "bearer token")
	if err := fs.Parse(args); err != nil {
		fs.Usage()
		return 2
	}

	if fs.NArg() != 2 {
		fmt.Fprintln(stderr, "decide requires <run_id> <decisions.json>")
		fs.Usage()
		return 2
	}
	runID := fs.Arg(0)
	// #nosec G304 -- path comes from the command line.
	data, err := os.ReadFile(fs.Arg(1))
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}

	respBody, status, err := httpPost(http.DefaultClient, *addr+"/v1/reviews/"+runID+"/decisions", *token, data)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	if status != http.StatusOK {
		fmt.Fprintf(stderr, "decide failed: %s\n", strings.TrimSpace(string(respBody)))
		return 1
	}

	if *jsonOut {
		_, _ = stdout.Write(respBody)
		return 0
	}

	var payload struct {
		ReceiptID      string `json:"receipt_id"`
		Recommendation string `json:"recommendation"`
		Applied        int    `json:"applied"`
	}
	if err := json.Unmarshal(respBody, &payload); err != nil {
		fmt.Fprintln(stderr, "invalid response:", err)
		return 1
	}
	fmt.Fprintf(stdout, "applied=%d recommendation=%s receipt_id=%s\n", payload.Applied, payload.Recommendation, payload.ReceiptID)
	return 0
}

func handleVerify(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", envOrDefault("VERITA_ADDR", defaultAddr), "Verita API address")
	jsonOut := fs.Bool("json", false, "print raw JSON response")
	token := fs.String("token", envOrDefault("VERITA_TOKEN", os.Getenv("VERITA_DEV_TOKEN")), "bearer token")
	if err := fs.Parse(args); err != nil {
		fs.Usage()
		return 2
	}

	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "verify requires <receipt_id>")
		fs.Usage()
		return 2
	}
	receiptID := fs.Arg(0)

	respBody, status, err := httpGet(http.DefaultClient, *addr+"/v1/verify/"+receiptID, *token)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}

	if *jsonOut {
		_, _ = stdout.Write(respBody)
		return 0
	}

	var payload struct {
		ReceiptID string `json:"receipt_id"`
		Valid     bool   `json:"valid"`
		Error     string `json:"error,omitempty"`
	}
	if err := json.Unmarshal(respBody, &payload); err != nil {
		fmt.Fprintln(stderr, "invalid response:", err)
		return 1
	}

	if status != http.StatusOK {
		fmt.Fprintf(stderr, "verify failed: %s\n", strings.TrimSpace(string(respBody)))
		return 1
	}

	if payload.Valid {
		fmt.Fprintf(stdout, "valid=true receipt_id=%s\n", payload.ReceiptID)
		return 0
	}
	fmt.Fprintf(stdout, "valid=false receipt_id=%s error=%s\n", payload.ReceiptID, payload.Error)
	return 1
}

func handlePack(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("pack", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", envOrDefault("VERITA_ADDR", defaultAddr), "Verita API address")
	outPath := fs.String("out", "verita-pack.zip", "output zip path")
	token := fs.String("token", envOrDefault("VERITA_TOKEN", os.Getenv("VERITA_DEV_TOKEN")), "bearer token")
	if err := fs.Parse(args); err != nil {
		fs.Usage()
		return 2
	}

	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "pack requires <run_id>")
		fs.Usage()
		return 2
	}
	runID := fs.Arg(0)

	respBody, status, err := httpGet(http.DefaultClient, *addr+"/v1/pack/"+runID, *token)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	if status != http.StatusOK {
		fmt.Fprintf(stderr, "pack failed: %s\n", strings.TrimSpace(string(respBody)))
		return 1
	}

	if err := os.MkdirAll(filepath.Dir(*outPath), 0o750); err != nil && filepath.Dir(*outPath) != "." {
		fmt.Fprintln(stderr, "output dir:", err)
		return 1
	}
	if err := os.WriteFile(*outPath, respBody, 0o600); err != nil {
		fmt.Fprintln(stderr, "write output:", err)
		return 1
	}
	fmt.Fprintf(stdout, "wrote %s\n", *outPath)
	return 0
}

func handlePolicy(args []string, stdout io.Writer, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}
	switch args[0] {
	case "lint":
		fs := flag.NewFlagSet("policy lint", flag.ContinueOnError)
		fs.SetOutput(stderr)
		if err := fs.Parse(args[1:]); err != nil {
			fs.Usage()
			return 2
		}
		if fs.NArg() != 1 {
			fmt.Fprintln(stderr, "policy lint requires <policy_path>")
			fs.Usage()
			return 2
		}
		path := fs.Arg(0)
		loaded, err := policy.Load(path)
		if err != nil {
			fmt.Fprintln(stderr, err.Error())
			return 1
		}
		fmt.Fprintf(stdout, "ok policy_id=%s policy_hash=%s\n", loaded.Policy.PolicyID, loaded.Hash)
		return 0
	default:
		usage(stderr)
		return 2
	}
}

func handleKeygen(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	fs.SetOutput(stderr)
	outPath := fs.String("out", "verita-signing.key", "output key path")
	if err := fs.Parse(args); err != nil {
		fs.Usage()
		return 2
	}

	_, pub, err := crypto.GenerateEd25519Seed(*outPath)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	fmt.Fprintf(stdout, "wrote %s public_key=%s\n", *outPath, hex.EncodeToString(pub))
	return 0
}

func httpGet(client *http.Client, url string, token string) ([]byte, int, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

func httpPost(client *http.Client, url string, token string, payload []byte) ([]byte, int, error) {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

func envOrDefault(key string, fallback string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return fallback
}

func usage(w io.Writer) {
	fmt.Fprint(w, `Verita CLI

Usage:
  verita review <bundle.json> [--addr URL] [--local] [--policy PATH] [--json] [--token TOKEN]
  verita decide <run_id> <decisions.json> [--addr URL] [--json] [--token TOKEN]
  verita verify <receipt_id> [--addr URL] [--json] [--token TOKEN]
  verita pack <run_id> --out verita-pack.zip [--addr URL] [--token TOKEN]
  verita policy lint <policy_path>
  verita keygen [--out PATH]
`)
}

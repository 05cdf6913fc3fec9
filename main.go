// main.go
package main

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"math/big"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"rolewarden/common"
	"rolewarden/database"
	"rolewarden/services"
)

var startedAt = time.Now()

func main() {
	addr := common.Env("ROLEWARDEN_BIND", ":443")

	infoLog("rolewarden starting with log level: %s", common.LogLevel())
	debugLog("Debug logging is enabled")

	// Initialize auth from environment
	sessionManager, err := InitAuthFromEnv()
	if err != nil {
		fatalLog("auth setup failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := database.InitDBFromEnv(ctx); err != nil {
		fatalLog("DB init failed: %v", err)
	}
	if err := services.InitInventory(); err != nil {
		fatalLog("inventory init failed: %v", err)
	}

	// Start inventory file watcher for auto-reload
	services.StartInventoryWatcher(ctx)

	// kick off the background host probe loop
	startProbeLoop(ctx)

	r := makeRouter()

	// Wrap router with session middleware
	var handler http.Handler = r
	if sessionManager != nil {
		handler = sessionManager.LoadAndSave(r)
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if !common.EnvBool("ROLEWARDEN_TLS_ENABLE", "true") {
		infoLog("http: listening on %s (TLS disabled)", addr)
		fatalLog("HTTP server error: %v", srv.ListenAndServe())
		return
	}

	certFile := strings.TrimSpace(common.Env("ROLEWARDEN_TLS_CERT_FILE", ""))
	keyFile := strings.TrimSpace(common.Env("ROLEWARDEN_TLS_KEY_FILE", ""))

	if certFile != "" && keyFile != "" {
		infoLog("https: listening on %s (cert=%s)", addr, certFile)
		fatalLog("HTTPS server error: %v", srv.ListenAndServeTLS(certFile, keyFile))
		return
	}

	if !common.EnvBool("ROLEWARDEN_TLS_SELF_SIGNED", "true") {
		fatalLog("https: TLS enabled but no cert files and self-signed disabled")
	}

	// Ephemeral self-signed (in-memory)
	certPEM, keyPEM, err := generateSelfSigned("rolewarden.local")
	if err != nil {
		fatalLog("Failed to generate self-signed certificate: %v", err)
	}
	tlsCert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		fatalLog("Failed to load certificate key pair: %v", err)
	}
	srv.TLSConfig = &tls.Config{
		Certificates: []tls.Certificate{tlsCert},
		MinVersion:   tls.VersionTLS12,
	}
	infoLog("https: listening on %s (self-signed)", addr)
	fatalLog("HTTPS server error: %v", srv.ListenAndServeTLS("", ""))
}

/* -------- background probe loop (all hosts) -------- */

func envDur(key, def string) time.Duration {
	if d, err := time.ParseDuration(common.Env(key, def)); err == nil {
		return d
	}
	out, _ := time.ParseDuration(def)
	return out
}

// package-local shorthands for the shared logger
var (
	debugLog = common.DebugLog
	infoLog  = common.InfoLog
	errorLog = common.ErrorLog
	fatalLog = common.FatalLog
)

// run one full pass across hosts with limited concurrency
func probeAllOnce(ctx context.Context, perHostTO time.Duration, conc int) {
	hostRows, err := database.ListHosts(ctx)
	if err != nil {
		errorLog("probe: list hosts failed: %v", err)
		return
	}
	sem := make(chan struct{}, conc)
	var wg sync.WaitGroup
	var mu sync.Mutex

	var up, down, skipped int

	for _, h := range hostRows {
		h := h // pin per-iteration copy; the go directive predates Go 1.22 loop scoping
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			hctx, cancel := context.WithTimeout(ctx, perHostTO)
			status, err := services.ProbeHost(hctx, h)
			cancel()

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				// treat intentional skips distinctly
				if errors.Is(err, services.ErrSkipProbe) {
					skipped++
					return
				}
				down++
				debugLog("probe: host=%s status=%s error=%v", h.Name, status, err)
				return
			}
			up++
		}()
	}
	wg.Wait()
	infoLog("probe: complete hosts=%d up=%d down=%d skipped=%d",
		len(hostRows), up, down, skipped)
}

func startProbeLoop(ctx context.Context) {
	if !common.EnvBool("ROLEWARDEN_PROBE_AUTO", "true") {
		infoLog("probe: auto disabled (ROLEWARDEN_PROBE_AUTO=false)")
		return
	}
	interval := envDur("ROLEWARDEN_PROBE_INTERVAL", "5m")
	perHostTO := envDur("ROLEWARDEN_PROBE_HOST_TIMEOUT", "15s")
	conc := common.EnvInt("ROLEWARDEN_PROBE_CONCURRENCY", 3)

	infoLog("probe: enabled interval=%s host_timeout=%s conc=%d", interval, perHostTO, conc)

	// optional boot probe
	if common.EnvBool("ROLEWARDEN_PROBE_ON_START", "true") {
		go probeAllOnce(ctx, perHostTO, conc)
	}

	t := time.NewTicker(interval)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-t.C:
				probeAllOnce(ctx, perHostTO, conc)
			case <-ctx.Done():
				infoLog("probe: loop stopping: %v", ctx.Err())
				return
			}
		}
	}()
}

/* -------- TLS self-signed helper -------- */

func generateSelfSigned(cn string) ([]byte, []byte, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, nil, err
	}

	serial, _ := rand.Int(rand.Reader, big.NewInt(1<<62))
	tpl := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: cn},
		NotBefore:             time.Now().Add(-1 * time.Hour),
		NotAfter:              time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{cn, "localhost"},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
	}

	der, err := x509.CreateCertificate(rand.Reader, &tpl, &tpl, &key.PublicKey, key)
	if err != nil {
		return nil, nil, err
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	return certPEM, keyPEM, nil
}

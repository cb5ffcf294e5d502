// Command cachefsd starts the CacheFS caching engine: it constructs the
// block data cache, the metadata cache, one backend adapter (http or s3,
// per config), and a thin frontend.FS wiring them together, then serves
// a debug status HTTP server exposing /metrics and /status.
package main

import (
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"runtime"

	auth "github.com/abbot/go-http-auth"
	"github.com/urfave/cli/v2"

	"github.com/akarasulu/cachefs/cache/backend"
	"github.com/akarasulu/cachefs/cache/backend/httpbackend"
	"github.com/akarasulu/cachefs/cache/backend/s3backend"
	"github.com/akarasulu/cachefs/cache/block"
	"github.com/akarasulu/cachefs/cache/meta"
	"github.com/akarasulu/cachefs/config"
	"github.com/akarasulu/cachefs/frontend"
	metricprom "github.com/akarasulu/cachefs/metric/prometheus"
	"github.com/akarasulu/cachefs/utils/flags"
	"github.com/akarasulu/cachefs/utils/rlimit"
)

const logFlags = log.Ldate | log.Ltime | log.LUTC

// gitCommit is the version stamp for cachefsd. The value of this var is
// set through linker options.
var gitCommit string

func main() {
	log.SetFlags(logFlags)

	maybeGitCommitMsg := ""
	if len(gitCommit) > 0 && gitCommit != "{STABLE_GIT_COMMIT}" {
		maybeGitCommitMsg = fmt.Sprintf(" from git commit %s", gitCommit)
	}
	log.Printf("cachefsd built with %s%s.", runtime.Version(), maybeGitCommitMsg)

	app := cli.NewApp()

	cli.AppHelpTemplate = flags.Template
	cli.HelpPrinterCustom = flags.HelpPrinter
	// Force the use of cli.HelpPrinterCustom.
	app.ExtraInfo = func() map[string]string { return map[string]string{} }

	app.Flags = flags.GetCliFlags()
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		log.Fatal("cachefsd terminated:", err)
	}
}

func run(ctx *cli.Context) error {
	c, err := config.Get(ctx)
	if err != nil {
		fmt.Fprintf(ctx.App.Writer, "%v\n\n", err)
		cli.ShowAppHelp(ctx)
		return cli.Exit("", 1)
	}

	if ctx.NArg() > 0 {
		fmt.Fprintf(ctx.App.Writer, "Error: cachefsd does not take positional arguments\n")
		for i := 0; i < ctx.NArg(); i++ {
			fmt.Fprintf(ctx.App.Writer, "arg: %s\n", ctx.Args().Get(i))
		}
		cli.ShowAppHelp(ctx)
		return cli.Exit("", 1)
	}

	rlimit.Raise()

	adapter, err := newBackendAdapter(c)
	if err != nil {
		log.Fatal(err)
	}

	collector := metricprom.NewCollector()

	blocks, err := block.New(c.CacheRoot,
		block.WithBlockSize(c.BlockSize),
		block.WithMaxCacheSize(c.MaxCacheSize),
		block.WithDebug(c.Debug),
		block.WithLogger(c.ErrorLogger),
		block.WithMetricCollector(collector),
	)
	if err != nil {
		log.Fatal(err)
	}

	metas, err := meta.New(c.CacheRoot+"/metadata.db",
		meta.WithMetaTTL(c.MetaTTL),
		meta.WithDirTTL(c.DirTTL),
		meta.WithNegativeTTL(c.NegativeTTL),
		meta.WithDebug(c.Debug),
		meta.WithLogger(c.ErrorLogger),
		meta.WithMetricCollector(collector),
	)
	if err != nil {
		log.Fatal(err)
	}
	defer metas.Close()

	fs := frontend.New(blocks, metas, adapter,
		frontend.WithLogger(c.AccessLogger),
		frontend.WithDebug(c.Debug),
	)

	mux := http.NewServeMux()
	metricprom.WrapEndpoints(mux, newStatusPageHandler(blocks))
	mux.HandleFunc("/invalidate", newInvalidateHandler(fs))

	var rootHandler http.Handler = mux
	if c.HtpasswdFile != "" {
		htpasswdSecrets := auth.HtpasswdFileProvider(c.HtpasswdFile)
		rootHandler = wrapAuthHandler(mux.ServeHTTP, htpasswdSecrets, c.StatusAddress)
	}

	log.Printf("Starting debug status server on address %s", c.StatusAddress)
	return http.ListenAndServe(c.StatusAddress, rootHandler)
}

// newInvalidateHandler lets an external process notify cachefsd that a
// path changed behind its back: POST /invalidate?path=... drops the
// cached metadata and blocks for path.
func newInvalidateHandler(fs *frontend.FS) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		path := r.URL.Query().Get("path")
		if path == "" {
			http.Error(w, "missing path parameter", http.StatusBadRequest)
			return
		}
		if err := fs.Invalidate(path); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func newBackendAdapter(c *config.Config) (backend.Adapter, error) {
	if c.HTTPBackend != nil {
		baseURL, err := url.Parse(c.HTTPBackend.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("parsing http_backend.url: %w", err)
		}
		return httpbackend.New(baseURL, httpbackend.WithLogger(c.ErrorLogger)), nil
	}
	return s3backend.New(c.S3Backend.ToAdapterConfig(), c.ErrorLogger)
}

func newStatusPageHandler(blocks *block.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		current, max := blocks.Stats()
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintf(w, "cachefsd\n")
		fmt.Fprintf(w, "block cache size: %d bytes\n", current)
		if max > 0 {
			fmt.Fprintf(w, "block cache max size: %d bytes\n", max)
		} else {
			fmt.Fprintf(w, "block cache max size: unbounded\n")
		}
	}
}

func wrapAuthHandler(handler http.HandlerFunc, secrets auth.SecretProvider, realm string) http.HandlerFunc {
	authenticator := auth.NewBasicAuthenticator(realm, secrets)
	return auth.JustCheck(authenticator, handler)
}

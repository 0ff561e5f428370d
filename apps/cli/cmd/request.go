package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	neturl "net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/requester/packages/assertions"
	"github.com/abdul-hamid-achik/requester/packages/capture"
	"github.com/abdul-hamid-achik/requester/packages/core/env"
	"github.com/abdul-hamid-achik/requester/packages/history"
	"github.com/abdul-hamid-achik/requester/packages/http"
	"github.com/abdul-hamid-achik/requester/packages/notify"
	"github.com/abdul-hamid-achik/requester/packages/output"
	"github.com/abdul-hamid-achik/requester/packages/snapshot"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var shortcutMethods = []string{"get", "post", "put", "patch", "delete", "head"}

// shapeOptions describe the outgoing request. They are shared by the
// request and stress commands.
type shapeOptions struct {
	query    []string
	headers  []string
	json     string
	jsonFile string
	form     []string
	data     string
	envFiles []string
	vars     []string

	timeout   time.Duration
	insecure  bool
	noFollow  bool
	rate      float64
	requestID bool
	awsSigV4  string
}

func (o *shapeOptions) addFlags(fs *pflag.FlagSet, jsonFlag string) {
	fs.StringArrayVarP(&o.query, "query", "q", nil, "Query parameter as key=value (repeatable)")
	fs.StringArrayVarP(&o.headers, "header", "H", nil, "Header as \"Name: value\" (repeatable)")
	fs.StringVar(&o.json, jsonFlag, "", "JSON body, sent with Content-Type application/json")
	fs.StringVar(&o.jsonFile, "json-file", "", "Read the JSON body from a file")
	fs.StringArrayVar(&o.form, "form", nil, "Form field as key=value, sent URL-encoded (repeatable)")
	fs.StringVar(&o.data, "data", "", "Raw body, or @path to read it from a file")
	fs.StringArrayVar(&o.envFiles, "env-file", nil, "Load {{variables}} from a .env file (repeatable)")
	fs.StringArrayVar(&o.vars, "var", nil, "Set a {{variable}} as name=value (repeatable)")

	fs.DurationVar(&o.timeout, "timeout", 0, "Request timeout (e.g. 5s, 1m), overrides the config file")
	fs.BoolVarP(&o.insecure, "insecure", "k", false, "Disable TLS certificate validation")
	fs.BoolVar(&o.noFollow, "no-follow", false, "Do not follow redirects")
	fs.Float64Var(&o.rate, "rate", 0, "Limit to this many requests per second")
	fs.BoolVar(&o.requestID, "request-id", false, "Send a generated X-Request-Id header")
	fs.StringVar(&o.awsSigV4, "aws-sigv4", "", "Sign with AWS SigV4 as region/service, using AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY and AWS_SESSION_TOKEN")
}

// clientOptions layers the flags over the configuration
func (o *shapeOptions) clientOptions(g *globalOptions, fs *pflag.FlagSet) ([]http.ClientOption, error) {
	opts := g.cfg.ClientOptions()
	opts = append(opts, http.WithLogger(g.logger))
	if fs.Changed("timeout") {
		opts = append(opts, http.WithTimeout(o.timeout))
	}
	if o.insecure {
		opts = append(opts, http.WithValidateSSL(false))
	}
	if o.noFollow {
		opts = append(opts, http.WithFollowRedirects(false))
	}
	if fs.Changed("rate") {
		opts = append(opts, http.WithRateLimit(o.rate))
	}
	if o.requestID {
		opts = append(opts, http.WithRequestID(true))
	}
	if o.awsSigV4 != "" {
		auth, err := awsAuth(o.awsSigV4)
		if err != nil {
			return nil, err
		}
		opts = append(opts, http.WithAWSAuth(auth))
	}
	return opts, nil
}

// awsAuth reads the credentials from the standard AWS environment variables
func awsAuth(scope string) (http.AWSAuth, error) {
	region, service, ok := strings.Cut(scope, "/")
	if !ok || region == "" || service == "" {
		return http.AWSAuth{}, usageError(fmt.Errorf("invalid --aws-sigv4 %q, want region/service", scope))
	}
	auth := http.AWSAuth{
		AccessKey:    os.Getenv("AWS_ACCESS_KEY_ID"),
		SecretKey:    os.Getenv("AWS_SECRET_ACCESS_KEY"),
		SessionToken: os.Getenv("AWS_SESSION_TOKEN"),
		Region:       region,
		Service:      service,
	}
	if auth.AccessKey == "" || auth.SecretKey == "" {
		return auth, &ExitError{Code: ExitConfigError, Err: errors.New("--aws-sigv4 needs AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY")}
	}
	return auth, nil
}

// resolver layers config variables, --env-file files and --var flags
func (o *shapeOptions) resolver(g *globalOptions) (*env.Resolver, error) {
	files, err := env.LoadDotEnvFiles(o.envFiles...)
	if err != nil {
		return nil, usageError(err)
	}
	flags, err := env.ParseAssignments(o.vars)
	if err != nil {
		return nil, usageError(err)
	}
	res := env.NewResolver(env.MergeVariables(g.cfg.Variables, files, flags))
	res.SetLogger(g.logger)
	return res, nil
}

// resolve substitutes placeholders, reporting failures as usage errors
func resolve(res *env.Resolver, s string) (string, error) {
	out, err := res.Resolve(s)
	if err != nil {
		return "", usageError(err)
	}
	return out, nil
}

// apply configures query, headers and payload on r, substituting
// placeholders first
func (o *shapeOptions) apply(r *http.Requester, res *env.Resolver) error {
	if len(o.query) > 0 {
		values, err := parsePairs(o.query, "query")
		if err != nil {
			return err
		}
		if values, err = res.ResolveValues(values); err != nil {
			return usageError(err)
		}
		r.WithQueryValues(values)
	}

	for _, h := range o.headers {
		name, value, ok := strings.Cut(h, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return usageError(fmt.Errorf("invalid header %q, want \"Name: value\"", h))
		}
		value, err := resolve(res, strings.TrimSpace(value))
		if err != nil {
			return err
		}
		r.WithHeader(strings.TrimSpace(name), value)
	}

	payloads := 0
	for _, set := range []bool{o.json != "", o.jsonFile != "", len(o.form) > 0, o.data != ""} {
		if set {
			payloads++
		}
	}
	if payloads > 1 {
		return usageError(errors.New("only one of --json, --json-file, --form and --data can be given"))
	}

	switch {
	case o.json != "":
		text, err := resolve(res, o.json)
		if err != nil {
			return err
		}
		v, err := decodeJSON([]byte(text))
		if err != nil {
			return usageError(fmt.Errorf("invalid JSON body: %w", err))
		}
		r.WithJSON(v)
	case o.jsonFile != "":
		data, err := os.ReadFile(o.jsonFile)
		if err != nil {
			return usageError(fmt.Errorf("failed to read JSON body: %w", err))
		}
		text, err := resolve(res, string(data))
		if err != nil {
			return err
		}
		v, err := decodeJSON([]byte(text))
		if err != nil {
			return usageError(fmt.Errorf("invalid JSON in %s: %w", o.jsonFile, err))
		}
		r.WithJSON(v)
	case len(o.form) > 0:
		values, err := parsePairs(o.form, "form field")
		if err != nil {
			return err
		}
		if values, err = res.ResolveValues(values); err != nil {
			return usageError(err)
		}
		r.WithFormValues(values)
	case o.data != "":
		body := []byte(o.data)
		if path, ok := strings.CutPrefix(o.data, "@"); ok {
			data, err := os.ReadFile(path)
			if err != nil {
				return usageError(fmt.Errorf("failed to read body: %w", err))
			}
			body = data
		}
		text, err := resolve(res, string(body))
		if err != nil {
			return err
		}
		r.WithRawPayload([]byte(text))
	}
	return nil
}

// watchedFiles lists the files whose content ends up in the request
func (o *shapeOptions) watchedFiles() []string {
	var files []string
	if o.jsonFile != "" {
		files = append(files, o.jsonFile)
	}
	if path, ok := strings.CutPrefix(o.data, "@"); ok {
		files = append(files, path)
	}
	return append(files, o.envFiles...)
}

// decodeJSON keeps numbers as json.Number so they are re-encoded unchanged
func decodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("trailing data after JSON value")
	}
	return v, nil
}

func parsePairs(pairs []string, what string) (neturl.Values, error) {
	values := make(neturl.Values)
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, usageError(fmt.Errorf("invalid %s %q, want key=value", what, pair))
		}
		values.Add(key, value)
	}
	return values, nil
}

type requestOptions struct {
	shapeOptions

	dump    bool
	format  string
	extract []string
	expect  []string
	schema  string
	snap    string
	update  bool
	history string
	watch   bool
	fail    bool

	notify notifyOptions
}

func newRequestCmd(g *globalOptions) *cobra.Command {
	o := &requestOptions{}
	cmd := &cobra.Command{
		Use:   "request <method> <url>",
		Short: "Send a request and show the response",
		Long: `Send one HTTP request built from flags and show the response.

Examples:
  requester request GET https://api.example.com/users -q page=2
  requester request POST https://api.example.com/users --json '{"name":"Ada"}'
  requester request PUT https://api.example.com/users/1 --json-file user.json --watch
  requester request GET https://api.example.com/users/1 --expect "status == 200" --expect "body.name exists"
  requester request GET https://api.example.com/health --dump --format yaml
  requester request GET "https://{{host}}/me" --env-file .env -H "Authorization: Bearer {{$API_TOKEN}}"`,
		Args: usageArgs(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, g, args[0], args[1])
		},
	}
	o.addFlags(cmd.Flags())
	return cmd
}

func newShortcutCmd(g *globalOptions, method string) *cobra.Command {
	o := &requestOptions{}
	upper := strings.ToUpper(method)
	cmd := &cobra.Command{
		Use:   method + " <url>",
		Short: fmt.Sprintf("Send a %s request (same as request %s <url>)", upper, upper),
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, g, upper, args[0])
		},
	}
	o.addFlags(cmd.Flags())
	return cmd
}

func (o *requestOptions) addFlags(fs *pflag.FlagSet) {
	o.shapeOptions.addFlags(fs, "json")

	fs.BoolVar(&o.dump, "dump", false, "Print the full outgoing/incoming dump instead of the response")
	fs.StringVarP(&o.format, "format", "o", getEnvString("REQUESTER_FORMAT", "console"), "Output format: console, json, yaml, junit, tap (env: REQUESTER_FORMAT)")
	fs.StringArrayVar(&o.extract, "extract", nil, "Extract a value as name=expr, e.g. id=body.data.id or trace=header.X-Trace (repeatable)")
	fs.StringArrayVar(&o.expect, "expect", nil, "Check the response, e.g. \"status == 200\", \"header.Content-Type contains json\" or \"body.items length 3\" (repeatable)")
	fs.StringVar(&o.schema, "schema", "", "Validate the JSON body against a JSON schema file")
	fs.StringVar(&o.snap, "snapshot", "", "Compare the body with the snapshot recorded in this file, recording it on first use")
	fs.BoolVar(&o.update, "update-snapshot", false, "Overwrite a mismatching snapshot instead of failing")
	fs.StringVar(&o.history, "history", "", "Save the exchange to this history database (default from config historyPath)")
	fs.BoolVarP(&o.watch, "watch", "w", false, "Re-send whenever the body, schema or env file changes")
	fs.BoolVar(&o.fail, "fail", false, "Exit with status 1 when the response is not 2xx")
	o.notify.addFlags(fs)
}

// usageArgs marks argument count errors as usage errors
func usageArgs(validate cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := validate(cmd, args); err != nil {
			return usageError(err)
		}
		return nil
	}
}

func (o *requestOptions) run(cmd *cobra.Command, g *globalOptions, method, rawURL string) error {
	format, err := output.ParseFormat(o.format)
	if err != nil {
		return usageError(err)
	}
	if o.dump && format != output.FormatJSON && format != output.FormatYAML {
		format = output.FormatJSON
	}

	extracts, err := parseExtracts(o.extract)
	if err != nil {
		return err
	}
	for _, expr := range o.expect {
		if _, err := assertions.Parse(expr); err != nil {
			return &ExitError{Code: ExitParseError, Err: fmt.Errorf("invalid --expect %q: %w", expr, err)}
		}
	}

	notifier, err := o.notify.manager(g)
	if err != nil {
		return err
	}

	historyPath := o.history
	if historyPath == "" {
		historyPath = g.cfg.HistoryPath
	}
	var store *history.Store
	if historyPath != "" {
		store, err = history.Open(historyPath)
		if err != nil {
			return &ExitError{Code: ExitConfigError, Err: err}
		}
		defer store.Close()
	}

	var snapshots *snapshot.Store
	if o.snap != "" {
		snapshots = snapshot.NewStore(o.snap, o.update)
	} else if o.update {
		return usageError(errors.New("--update-snapshot needs --snapshot"))
	}

	x := &exchanger{
		g:        g,
		o:        o,
		flags:    cmd.Flags(),
		method:   strings.ToUpper(method),
		url:      rawURL,
		format:   format,
		extracts: extracts,
		store:    store,
		snaps:    snapshots,
		notifier: notifier,
		out:      cmd.OutOrStdout(),
	}

	if o.watch {
		return x.watch(cmd.Context())
	}
	return x.once(cmd.Context())
}

func parseExtracts(pairs []string) (map[string]string, error) {
	extracts := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		name, expr, ok := strings.Cut(pair, "=")
		name, expr = strings.TrimSpace(name), strings.TrimSpace(expr)
		if !ok || name == "" {
			return nil, usageError(fmt.Errorf("invalid --extract %q, want name=expr", pair))
		}
		if _, err := capture.ParseExpr(expr); err != nil {
			return nil, &ExitError{Code: ExitParseError, Err: fmt.Errorf("invalid --extract %q: %w", pair, err)}
		}
		extracts[name] = expr
	}
	return extracts, nil
}

// exchanger sends the request described by the flags and reports the
// exchange. Each send uses a fresh frozen requester.
type exchanger struct {
	g     *globalOptions
	o     *requestOptions
	flags *pflag.FlagSet

	method   string
	url      string
	format   output.Format
	extracts map[string]string
	store    *history.Store
	snaps    *snapshot.Store
	notifier *notify.Manager
	out      io.Writer
}

// once sends the request and reports it, returning the error that decides
// the exit code
func (x *exchanger) once(ctx context.Context) error {
	exchange, r, err := x.send(ctx)
	if err != nil {
		return err
	}
	defer r.Close()

	if x.notifier != nil {
		summary := exchangeSummary(x.method+" "+x.url, exchange, x.o.fail)
		if err := x.notifier.Notify(summary); err != nil {
			x.g.logger.Warn().Err(err).Msg("failed to send notification")
		}
	}

	if x.o.dump {
		if err := output.WriteDump(x.out, exchange.Dump, x.format); err != nil {
			return err
		}
		if exchange.Err != nil {
			return exchange.Err
		}
	} else {
		formatter, err := output.New(x.format, output.Options{
			Writer:  x.out,
			Verbose: x.g.verbose > 0,
			NoColor: x.g.noColor,
		})
		if err != nil {
			return usageError(err)
		}
		formatter.FormatExchange(exchange)
		if err := formatter.Flush(); err != nil {
			return err
		}
		if exchange.Err != nil {
			return &ExitError{Code: exitCode(exchange.Err), Err: exchange.Err, Silent: true}
		}
	}

	if !exchange.Passed() {
		return &ExitError{Code: ExitTestFailure, Err: errors.New("checks failed"), Silent: true}
	}
	if x.o.fail && !r.Success() {
		return &ExitError{
			Code:   ExitTestFailure,
			Err:    fmt.Errorf("server responded with %d", r.StatusCode()),
			Silent: true,
		}
	}
	return nil
}

// send builds and issues the request. A transport failure is recorded on
// the exchange; only errors that stop the request from being built are
// returned.
func (x *exchanger) send(ctx context.Context) (*output.Exchange, *http.Requester, error) {
	opts, err := x.o.clientOptions(x.g, x.flags)
	if err != nil {
		return nil, nil, err
	}
	res, err := x.o.resolver(x.g)
	if err != nil {
		return nil, nil, err
	}
	target, err := resolve(res, x.url)
	if err != nil {
		return nil, nil, err
	}
	r := http.New(target, opts...).Frozen()
	if err := x.o.apply(r, res); err != nil {
		r.Close()
		return nil, nil, err
	}

	_, err = r.RequestContext(ctx, x.method)
	var configErr *http.ConfigurationError
	if errors.As(err, &configErr) {
		r.Close()
		return nil, nil, &ExitError{Code: ExitConfigError, Err: err}
	}

	exchange := &output.Exchange{Dump: r.Dump(), Err: err}
	if err == nil {
		c := r.Capture()
		exchange.Checks = assertions.EvaluateAll(c, x.o.expect, ".")
		if x.o.schema != "" {
			exchange.Checks = append(exchange.Checks, schemaCheck(c, x.o.schema))
		}
		if x.snaps != nil {
			exchange.Checks = append(exchange.Checks, snapshotCheck(c, x.snaps, x.method+" "+x.url))
		}
		if len(x.extracts) > 0 {
			exchange.Extracted = capture.ExtractAll(c, x.extracts)
		}
	}

	if x.store != nil {
		id, err := x.store.Save(ctx, exchange.Dump)
		if err != nil {
			x.g.logger.Warn().Err(err).Msg("failed to save exchange to history")
		} else {
			x.g.logger.Info().Str("id", id).Msg("saved to history")
		}
	}

	return exchange, r, nil
}

// snapshotCheck compares the decoded JSON body, or the raw text when the
// body is not JSON, with the snapshot stored under name
func snapshotCheck(c *http.Capture, store *snapshot.Store, name string) *assertions.Result {
	var body any = c.BodyString()
	if c.IsJSON() {
		var v any
		if err := c.JSON(&v); err == nil {
			body = v
		}
	}

	res := store.Compare(name, body)
	return &assertions.Result{
		Passed:   res.Passed,
		Message:  res.Message,
		Expected: res.Expected,
		Actual:   res.Actual,
		Subject:  "body",
		Operator: "snapshot",
	}
}

// schemaCheck reports schema validation as one more check
func schemaCheck(c *http.Capture, path string) *assertions.Result {
	result := &assertions.Result{
		Subject:  "body",
		Operator: string(assertions.OpSchema),
		Expected: path,
	}

	res, err := assertions.ValidateSchemaFile(c, path)
	if err != nil {
		result.Message = err.Error()
		return result
	}
	result.Passed = res.Valid
	if !res.Valid {
		errs := append([]string(nil), res.Errors...)
		sort.Strings(errs)
		result.Message = strings.Join(errs, "; ")
	}
	return result
}

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"templatestore/internal/audit"
	"templatestore/internal/config"
	"templatestore/internal/core/template"
	"templatestore/internal/store/tsm"
	"templatestore/internal/utils"
	"templatestore/internal/watch"

	"github.com/juju/errors"
	"github.com/juju/gnuflag"
	"github.com/juju/loggo/v2"
)

var logger = loggo.GetLogger("templatestore")

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// stringsValue collects comma separated values across repeated flags.
type stringsValue []string

func (v *stringsValue) Set(s string) error {
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			*v = append(*v, part)
		}
	}
	return nil
}

func (v *stringsValue) String() string {
	return strings.Join(*v, ",")
}

type options struct {
	storePath  string
	configPath string
	logSpec    string
	list       bool
	watch      bool
	export     string
	output     string
	files      stringsValue
	remove     stringsValue
}

func parseArgs(args []string, stderr io.Writer) (*options, error) {
	o := &options{}
	fs := gnuflag.NewFlagSet("templatestore", gnuflag.ContinueOnError)
	fs.SetOutput(stderr)

	const storeUsage = "store file to update or create, defaults to '" + utils.DefaultStorePath + "'"
	fs.StringVar(&o.storePath, "s", "", storeUsage)
	fs.StringVar(&o.storePath, "storepath", "", storeUsage)
	fs.StringVar(&o.configPath, "c", "", "configuration file")
	fs.StringVar(&o.configPath, "config", "", "configuration file")
	fs.StringVar(&o.logSpec, "log", "", "logging specification, e.g. '<root>=DEBUG'")
	fs.BoolVar(&o.list, "l", false, "list templates in store")
	fs.BoolVar(&o.list, "list", false, "list templates in store")
	fs.BoolVar(&o.watch, "w", false, "list templates again whenever the store is replaced")
	fs.BoolVar(&o.watch, "watch", false, "list templates again whenever the store is replaced")
	fs.StringVar(&o.export, "x", "", "template to write out as PNG")
	fs.StringVar(&o.export, "export", "", "template to write out as PNG")
	fs.StringVar(&o.output, "o", ".", "directory for exported templates")
	fs.StringVar(&o.output, "output", ".", "directory for exported templates")
	fs.Var(&o.files, "f", "a file or list of files to add, ie 'img1.png,img2.png'")
	fs.Var(&o.files, "files", "a file or list of files to add, ie 'img1.png,img2.png'")
	fs.Var(&o.remove, "r", "a template or list of templates to remove, ie 'img1,img2.png'")
	fs.Var(&o.remove, "remove", "a template or list of templates to remove, ie 'img1,img2.png'")

	if err := fs.Parse(true, args); err != nil {
		return nil, err
	}
	if extra := fs.Args(); len(extra) > 0 {
		return nil, errors.Errorf("unexpected arguments: %s", strings.Join(extra, " "))
	}
	return o, nil
}

func loadConfig(o *options) (config.Config, error) {
	path, required := utils.DefaultConfigPath, false
	if o.configPath != "" {
		path, required = o.configPath, true
	}
	cfg, err := config.Load(path, required)
	if err != nil {
		return config.Config{}, err
	}
	if o.storePath != "" {
		cfg.StorePath = o.storePath
	}
	return cfg, nil
}

func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseArgs(args, stderr)
	if err == gnuflag.ErrHelp {
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "templatestore: %v\n", err)
		return 2
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(stderr, "templatestore: %v\n", err)
		return 2
	}
	spec := cfg.LoggingSpec()
	if opts.logSpec != "" {
		spec = opts.logSpec
	}
	if err := loggo.ConfigureLoggers(spec); err != nil {
		fmt.Fprintf(stderr, "templatestore: %v\n", err)
		return 2
	}

	auditor, closeAuditor, err := openAuditor(cfg.AuditLog)
	if err != nil {
		fmt.Fprintf(stderr, "templatestore: %v\n", err)
		return 1
	}
	defer closeAuditor()

	storeOpts := storeOptions(cfg)
	mgr, err := tsm.NewTsmManager(tsm.NewTsmStore(cfg.StorePath, storeOpts...), auditor)
	if err != nil {
		fmt.Fprintf(stderr, "templatestore: %v\n", err)
		return 1
	}
	svc := template.NewTemplateService(mgr)

	switch {
	case opts.watch:
		return watchStore(cfg.StorePath, storeOpts, svc.List(), stdout, stderr)
	case opts.list:
		printNames(stdout, svc.List())
		return 0
	case opts.export != "":
		out, err := svc.Export(template.ServiceExportModel{Name: opts.export, Dir: opts.output})
		if err != nil {
			fmt.Fprintf(stderr, "templatestore: %v\n", err)
			return 1
		}
		fmt.Fprintln(stdout, out)
		return 0
	}

	if len(opts.files) > 0 {
		if err := svc.Add(template.ServiceAddModel{Files: opts.files}); err != nil {
			fmt.Fprintf(stderr, "templatestore: %v\n", err)
			return 1
		}
	}
	if len(opts.remove) > 0 {
		missing, err := svc.Remove(template.ServiceRemoveModel{Names: opts.remove})
		for _, name := range missing {
			fmt.Fprintf(stderr, "Template, %s not found in store.\n", name)
		}
		if err != nil {
			fmt.Fprintf(stderr, "templatestore: %v\n", err)
			return 1
		}
	}
	return 0
}

func storeOptions(cfg config.Config) []tsm.Option {
	opts := []tsm.Option{tsm.WithCompression(cfg.EncoderLevel())}
	if cfg.FileLock {
		opts = append(opts, tsm.WithFileLock())
	}
	return opts
}

func openAuditor(path string) (audit.Logger, func(), error) {
	if path == "" {
		return audit.Discard, func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, nil, errors.Annotatef(err, "open audit log %q", path)
	}
	return audit.JsonLineLogger{Out: f}, func() { f.Close() }, nil
}

func printNames(w io.Writer, names []string) {
	fmt.Fprintln(w, strings.Join(names, ", "))
}

func watchStore(path string, storeOpts []tsm.Option, initial []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w, err := watch.NewWatcher(path)
	if err != nil {
		fmt.Fprintf(stderr, "templatestore: %v\n", err)
		return 1
	}
	printNames(stdout, initial)

	err = w.Run(ctx, func() {
		m, err := tsm.Open(path, storeOpts...)
		if err != nil {
			logger.Errorf("reload %q: %v", path, err)
			return
		}
		printNames(stdout, m.ListNames())
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(stderr, "templatestore: %v\n", err)
		return 1
	}
	return 0
}

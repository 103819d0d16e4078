package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/btcsuite/btcd/txscript"
	"github.com/jessevdk/go-flags"

	"github.com/goodnatureofminers/tsbscanner-backend/internal/tsb/codec"
	"github.com/goodnatureofminers/tsbscanner-backend/internal/tsb/model"
	"github.com/goodnatureofminers/tsbscanner-backend/internal/tsb/repository"
	"github.com/goodnatureofminers/tsbscanner-backend/internal/tsb/storage"
)

type options struct {
	Storage storage.Config `group:"store"`
	Timeout time.Duration  `long:"timeout" env:"TSB_INSPECT_TIMEOUT" default:"30s" description:"timeout for store queries"`
}

type app struct {
	ctx  context.Context
	opts *options
	out  io.Writer
}

// withReader opens the configured store for the duration of fn.
func (a *app) withReader(fn func(ctx context.Context, r repository.Reader) error) error {
	ctx, cancel := context.WithTimeout(a.ctx, a.opts.Timeout)
	defer cancel()

	store, closeStore, err := storage.Open(ctx, a.opts.Storage)
	if err != nil {
		return err
	}
	defer func() {
		_ = closeStore(context.Background())
	}()
	return fn(ctx, store)
}

type decodeCommand struct {
	app  *app
	Args struct {
		Script string `positional-arg-name:"hex" required:"yes" description:"witness script in hex"`
	} `positional-args:"yes"`
}

func (c *decodeCommand) Execute([]string) error {
	return decode(c.app.out, c.Args.Script)
}

type tokenCommand struct {
	app  *app
	Args struct {
		TxID string `positional-arg-name:"txid" required:"yes" description:"transaction id"`
	} `positional-args:"yes"`
}

func (c *tokenCommand) Execute([]string) error {
	return c.app.withReader(func(ctx context.Context, r repository.Reader) error {
		return printToken(ctx, c.app.out, r, c.Args.TxID)
	})
}

type latestCommand struct {
	app   *app
	Limit int `long:"limit" default:"20" description:"number of tokens to list"`
}

func (c *latestCommand) Execute([]string) error {
	return c.app.withReader(func(ctx context.Context, r repository.Reader) error {
		return printLatest(ctx, c.app.out, r, c.Limit)
	})
}

type statusCommand struct {
	app *app
}

func (c *statusCommand) Execute([]string) error {
	return c.app.withReader(func(ctx context.Context, r repository.Reader) error {
		return printStatus(ctx, c.app.out, r)
	})
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := &options{}
	a := &app{ctx: ctx, opts: opts, out: os.Stdout}

	parser := flags.NewParser(opts, flags.HelpFlag|flags.PassDoubleDash)
	commands := []struct {
		name, short, long string
		data              any
	}{
		{"decode", "Decode a TSB witness script", "Decode a hex witness script and print the token and its disassembly.", &decodeCommand{app: a}},
		{"token", "Show a stored token", "Look up the stored token of a transaction.", &tokenCommand{app: a}},
		{"latest", "List recent tokens", "List the most recently scanned tokens.", &latestCommand{app: a}},
		{"status", "Show the scan checkpoint", "Print the scanner checkpoint.", &statusCommand{app: a}},
	}
	for _, c := range commands {
		if _, err := parser.AddCommand(c.name, c.short, c.long, c.data); err != nil {
			fmt.Fprintf(os.Stderr, "register %s command: %v\n", c.name, err)
			os.Exit(1)
		}
	}

	if _, err := parser.ParseArgs(os.Args[1:]); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stdout, ferr.Message)
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func decode(w io.Writer, scriptHex string) error {
	script, err := hex.DecodeString(strings.TrimSpace(scriptHex))
	if err != nil {
		return fmt.Errorf("decode hex: %w", err)
	}
	res, ok := codec.Decode(script)
	if !ok {
		return errors.New("script is not a TSB token script")
	}

	view := newTokenView(res.Token)
	view.Trailing = res.Trailing
	if err := writeJSON(w, view); err != nil {
		return err
	}

	disasm, err := txscript.DisasmString(script[:len(script)-res.Trailing])
	if err != nil {
		return fmt.Errorf("disassemble script: %w", err)
	}
	_, err = fmt.Fprintf(w, "\n%s\n", disasm)
	return err
}

func printToken(ctx context.Context, w io.Writer, r repository.Reader, txid string) error {
	t, err := r.TokenByTxID(ctx, strings.TrimSpace(txid))
	if errors.Is(err, model.ErrNotFound) {
		return fmt.Errorf("no token stored for %s", txid)
	}
	if err != nil {
		return fmt.Errorf("lookup token: %w", err)
	}
	return writeJSON(w, newTokenView(t))
}

func printLatest(ctx context.Context, w io.Writer, r repository.Reader, limit int) error {
	tokens, err := r.LatestTokens(ctx, limit)
	if err != nil {
		return fmt.Errorf("list tokens: %w", err)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "HEIGHT\tTXID\tTOKEN\tAMOUNT\tTYPE")
	for _, t := range tokens {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\n", t.BlockHeight, t.TxID, t.TokenID, t.Amount, codec.TypeName(t.TypeCode))
	}
	return tw.Flush()
}

func printStatus(ctx context.Context, w io.Writer, r repository.Reader) error {
	p, ok, err := r.Progress(ctx)
	if err != nil {
		return fmt.Errorf("load progress: %w", err)
	}
	if !ok {
		_, err = fmt.Fprintln(w, "no checkpoint yet")
		return err
	}

	hash := p.LastScannedHash
	if hash == "" {
		hash = "-"
	}
	_, err = fmt.Fprintf(w, "last scanned height: %d\nlast scanned hash:   %s\nlast scan:           %s\n",
		p.LastScannedHeight, hash, p.LastScanTimestamp.UTC().Format(time.RFC3339))
	return err
}

type tokenView struct {
	TokenID      string         `json:"token_id"`
	Amount       uint64         `json:"amount"`
	TypeCode     uint8          `json:"type_code"`
	TypeName     string         `json:"type_name"`
	Metadata     string         `json:"metadata"`
	Fields       map[string]any `json:"metadata_fields,omitempty"`
	MetadataPush string         `json:"metadata_push"`
	Timestamp    uint64         `json:"timestamp"`
	TxID         string         `json:"txid,omitempty"`
	InputIndex   uint32         `json:"input_index"`
	BlockHeight  uint64         `json:"block_height,omitempty"`
	BlockHash    string         `json:"block_hash,omitempty"`
	BlockTime    *time.Time     `json:"block_time,omitempty"`
	Trailing     int            `json:"trailing_bytes,omitempty"`
}

func newTokenView(t model.Token) tokenView {
	v := tokenView{
		TokenID:      t.TokenID,
		Amount:       t.Amount,
		TypeCode:     t.TypeCode,
		TypeName:     codec.TypeName(t.TypeCode),
		Metadata:     t.Metadata.Raw,
		Fields:       t.Metadata.Fields,
		MetadataPush: t.MetadataPush.String(),
		Timestamp:    t.Timestamp,
		TxID:         t.TxID,
		InputIndex:   t.InputIndex,
		BlockHeight:  t.BlockHeight,
		BlockHash:    t.BlockHash,
	}
	if !t.BlockTime.IsZero() {
		bt := t.BlockTime.UTC()
		v.BlockTime = &bt
	}
	return v
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

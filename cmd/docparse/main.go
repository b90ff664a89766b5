// Command docparse parses one document against a mapping and prints the
// sub-documents it produces and the mapping update it discovered.
//
//	docparse -type tweet -id 1 -mapping tweet.json tweet.json
//	cat doc.yaml | docparse -type tweet -format yaml -dump -
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/davecgh/go-spew/spew"

	"github.com/Adithya-Monish-Kumar-K/searchmapper/internal/mapper"
	"github.com/Adithya-Monish-Kumar-K/searchmapper/internal/mapping"
	"github.com/Adithya-Monish-Kumar-K/searchmapper/internal/mapping/store"
	"github.com/Adithya-Monish-Kumar-K/searchmapper/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/searchmapper/pkg/logger"
)

type options struct {
	configPath  string
	mappingPath string
	docType     string
	id          string
	format      string
	dump        bool
	merged      bool
	docPath     string
}

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "docparse: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("docparse", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.configPath, "config", "", "optional config file for mapper defaults")
	fs.StringVar(&o.mappingPath, "mapping", "", "mapping definition to install before parsing")
	fs.StringVar(&o.docType, "type", "doc", "document type")
	fs.StringVar(&o.id, "id", "1", "document id")
	fs.StringVar(&o.format, "format", "", "json or yaml; guessed from the file extension when empty")
	fs.BoolVar(&o.dump, "dump", false, "dump the parsed document with go-spew instead of JSON")
	fs.BoolVar(&o.merged, "merged", false, "also print the mapping after installing the update")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if fs.NArg() != 1 {
		return o, fmt.Errorf("expected exactly one document file (or - for stdin), got %d", fs.NArg())
	}
	o.docPath = fs.Arg(0)
	if o.format == "" {
		switch strings.ToLower(filepath.Ext(o.docPath)) {
		case ".yaml", ".yml":
			o.format = "yaml"
		default:
			o.format = "json"
		}
	}
	return o, nil
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	o, err := parseFlags(args, os.Stderr)
	if err != nil {
		return err
	}
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	logger.Setup("warn", "text")

	var body []byte
	if o.docPath == "-" {
		body, err = io.ReadAll(stdin)
	} else {
		body, err = os.ReadFile(o.docPath)
	}
	if err != nil {
		return fmt.Errorf("reading document: %w", err)
	}
	format := mapper.FormatJSON
	if o.format == "yaml" {
		format = mapper.FormatYAML
	}

	ctx := context.Background()
	svc, err := mapping.NewService(cfg.Mapper, mapping.Deps{Store: store.NewMemory()})
	if err != nil {
		return err
	}
	if o.mappingPath != "" {
		def, err := os.ReadFile(o.mappingPath)
		if err != nil {
			return fmt.Errorf("reading mapping: %w", err)
		}
		if _, err := svc.PutMapping(ctx, o.docType, def); err != nil {
			return fmt.Errorf("installing mapping: %w", err)
		}
	}
	dm, err := svc.DocumentMapperWithAutoCreate(ctx, o.docType)
	if err != nil {
		return err
	}
	src := mapper.SourceToParse{Index: svc.IndexName(), Type: o.docType, ID: o.id, Source: body, Format: format}
	parsed, err := svc.ParseWith(ctx, dm, src)
	if err != nil {
		return err
	}

	if o.dump {
		spew.Fdump(stdout, parsed)
		return nil
	}

	out := report{UID: parsed.UID}
	for i, doc := range parsed.Docs {
		out.Docs = append(out.Docs, describe(doc, i == len(parsed.Docs)-1))
	}
	if parsed.DynamicUpdate != nil {
		out.DynamicUpdate = map[string]any{o.docType: parsed.DynamicUpdate.ToMap()}
	}
	if o.merged {
		next, err := svc.ApplyUpdate(ctx, o.docType, dm.Version(), parsed.DynamicUpdate)
		if err != nil {
			return fmt.Errorf("installing update: %w", err)
		}
		out.Mapping = map[string]any{o.docType: next.Mapping()}
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

type report struct {
	UID           string         `json:"uid"`
	Docs          []subDoc       `json:"docs"`
	DynamicUpdate map[string]any `json:"dynamic_update"`
	Mapping       map[string]any `json:"mapping,omitempty"`
}

type subDoc struct {
	Root   bool         `json:"root"`
	Prefix string       `json:"prefix,omitempty"`
	Fields []fieldValue `json:"fields"`
}

type fieldValue struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Value   any    `json:"value"`
	Indexed bool   `json:"indexed,omitempty"`
	Stored  bool   `json:"stored,omitempty"`
}

func describe(doc *mapper.Document, root bool) subDoc {
	sd := subDoc{Root: root, Prefix: doc.Prefix()}
	for _, f := range doc.Fields() {
		v := f.Value
		if b, ok := v.([]byte); ok {
			v = string(b)
		}
		sd.Fields = append(sd.Fields, fieldValue{
			Name:    f.Name,
			Type:    f.Type,
			Value:   v,
			Indexed: f.Indexed,
			Stored:  f.Stored,
		})
	}
	return sd
}

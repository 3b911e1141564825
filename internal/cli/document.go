package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/roach88/docsync/internal/document"
	"github.com/roach88/docsync/internal/fieldpath"
	"github.com/roach88/docsync/internal/ir"
	"github.com/roach88/docsync/internal/path"
	"github.com/roach88/docsync/internal/session"
)

// DocumentResult is the output of the document commands.
type DocumentResult struct {
	Address      string      `json:"address"`
	Acknowledged *bool       `json:"acknowledged,omitempty"`
	Same         *bool       `json:"same,omitempty"`
	Document     ir.IRObject `json:"document"`
}

// docFunc runs one document operation against an open session.
type docFunc func(ctx context.Context, s *session.Session) (*DocumentResult, error)

// NewCreateCommand creates the create command.
func NewCreateCommand(rootOpts *RootOptions) *cobra.Command {
	var attrs, id string

	cmd := &cobra.Command{
		Use:   "create <type>",
		Short: "Insert a new root document",
		Long: `Insert a new root document of the given type.

Attributes are a JSON object. Without --id the configured generator
(uuid or ulid) assigns one.

Examples:
  docsync create Person --attrs '{"title":"Sir"}'
  docsync create Person --id p1 --attrs '{"aliases":["Bond"]}'`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDocument(rootOpts, cmd, func(ctx context.Context, s *session.Session) (*DocumentResult, error) {
				values, err := parseObject("attrs", attrs)
				if err != nil {
					return nil, err
				}
				n, err := s.Build(args[0], values)
				if err != nil {
					return nil, err
				}
				if id != "" {
					if err := n.SetID(id); err != nil {
						return nil, err
					}
				}
				if err := s.Insert(ctx, n); err != nil {
					return nil, err
				}
				return describe(n, nil)
			})
		},
	}

	cmd.Flags().StringVar(&attrs, "attrs", "", "attributes as a JSON object")
	cmd.Flags().StringVar(&id, "id", "", "document id (generated when empty)")
	return cmd
}

// NewEmbedCommand creates the embed command.
func NewEmbedCommand(rootOpts *RootOptions) *cobra.Command {
	var at, relation, childType, attrs string

	cmd := &cobra.Command{
		Use:   "embed <type> <id>",
		Short: "Embed a new child document",
		Long: `Embed a new child into a stored document through an embedding relation.

embeds_many children are pushed onto the stored array, embeds_one children
replace the stored value. --path selects an embedded parent.

Examples:
  docsync embed Person p1 --relation addresses --type Address --attrs '{"street":"Abbey Road"}'
  docsync embed Person p1 --path addresses.0 --relation locations --type Location`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDocument(rootOpts, cmd, func(ctx context.Context, s *session.Session) (*DocumentResult, error) {
				values, err := parseObject("attrs", attrs)
				if err != nil {
					return nil, err
				}
				parent, err := locate(ctx, s, args[0], args[1], at)
				if err != nil {
					return nil, err
				}
				child, err := s.Build(childType, values)
				if err != nil {
					return nil, err
				}
				ok, err := s.Embed(ctx, parent, relation, child)
				if err != nil {
					return nil, err
				}
				return describe(child, &ok)
			})
		},
	}

	cmd.Flags().StringVar(&at, "path", "", "embedded parent path, e.g. addresses.0")
	cmd.Flags().StringVar(&relation, "relation", "", "embedding relation name")
	cmd.Flags().StringVar(&childType, "type", "", "child document type")
	cmd.Flags().StringVar(&attrs, "attrs", "", "child attributes as a JSON object")
	_ = cmd.MarkFlagRequired("relation")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

// NewPushCommand creates the push command.
func NewPushCommand(rootOpts *RootOptions) *cobra.Command {
	return newArrayCommand(rootOpts, "push", "Append values to array fields",
		`Append values to array fields of a stored document with a single
positional $push. Each field in --values maps to a JSON array.

Examples:
  docsync push Person p1 --values '{"aliases":["007"]}'
  docsync push Person p1 --path addresses.0 --values '{"tags":["home","work"]}'`,
		(*session.Session).Push)
}

// NewAddToSetCommand creates the add-to-set command.
func NewAddToSetCommand(rootOpts *RootOptions) *cobra.Command {
	return newArrayCommand(rootOpts, "add-to-set", "Add missing values to array fields",
		`Add values not already present to array fields of a stored document
with a single positional $addToSet.

Examples:
  docsync add-to-set Person p1 --values '{"aliases":["Bond","007"]}'
  docsync add-to-set Person p1 --path addresses.0 --values '{"tags":["home"]}'`,
		(*session.Session).AddToSet)
}

type arrayOp func(s *session.Session, ctx context.Context, node *document.Node, pairs ...ir.IRPair) (bool, error)

func newArrayCommand(rootOpts *RootOptions, use, short, long string, op arrayOp) *cobra.Command {
	var at, values string

	cmd := &cobra.Command{
		Use:           use + " <type> <id>",
		Short:         short,
		Long:          long,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDocument(rootOpts, cmd, func(ctx context.Context, s *session.Session) (*DocumentResult, error) {
				fields, err := parseObject("values", values)
				if err != nil {
					return nil, err
				}
				if len(fields) == 0 {
					return nil, &LoadError{Code: ErrCodeBadInput, Message: "--values must name at least one field"}
				}
				node, err := locate(ctx, s, args[0], args[1], at)
				if err != nil {
					return nil, err
				}
				pairs := make([]ir.IRPair, 0, len(fields))
				for _, k := range fields.SortedKeys() {
					pairs = append(pairs, ir.O(k, fields[k]))
				}
				ok, err := op(s, ctx, node, pairs...)
				if err != nil {
					return nil, err
				}
				return describe(node, &ok)
			})
		},
	}

	cmd.Flags().StringVar(&at, "path", "", "embedded document path, e.g. addresses.0")
	cmd.Flags().StringVar(&values, "values", "", "field to JSON array of values")
	_ = cmd.MarkFlagRequired("values")
	return cmd
}

// NewReloadCommand creates the reload command.
func NewReloadCommand(rootOpts *RootOptions) *cobra.Command {
	var at string

	cmd := &cobra.Command{
		Use:   "reload <type> <id>",
		Short: "Reload a document from the store",
		Long: `Load a stored document, optionally descend to an embedded node, and
reload it from the store. Embedded nodes are re-read from their root
document and matched by id.

Examples:
  docsync reload Person p1
  docsync reload Person p1 --path addresses.0`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDocument(rootOpts, cmd, func(ctx context.Context, s *session.Session) (*DocumentResult, error) {
				node, err := locate(ctx, s, args[0], args[1], at)
				if err != nil {
					return nil, err
				}
				live, err := s.Reload(ctx, node)
				if err != nil {
					return nil, err
				}
				res, err := describe(live, nil)
				if err != nil {
					return nil, err
				}
				same := live == node
				res.Same = &same
				return res, nil
			})
		},
	}

	cmd.Flags().StringVar(&at, "path", "", "embedded document path, e.g. addresses.0")
	return cmd
}

// runDocument opens a session, runs fn and prints its result.
func runDocument(opts *RootOptions, cmd *cobra.Command, fn docFunc) error {
	formatter := newFormatter(opts, cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	s, err := openSession(ctx, opts, formatter.GetErrWriter())
	if err != nil {
		return outputDocumentError(formatter, err)
	}
	defer s.Close()

	res, err := fn(ctx, s)
	if err != nil {
		return outputDocumentError(formatter, err)
	}

	if err := formatter.Success(res); err != nil {
		return err
	}

	if res.Acknowledged != nil && !*res.Acknowledged {
		return NewExitError(ExitFailure, fmt.Sprintf("store did not acknowledge the update to %s", res.Address))
	}
	return nil
}

func outputDocumentError(formatter *OutputFormatter, err error) error {
	code, msg := errorCode(err), err.Error()
	var le *LoadError
	if errors.As(err, &le) {
		code, msg = le.Code, le.Message
	}
	return formatter.Fail(ExitCommandError, code, msg, err)
}

// WriteText renders the address, flags and canonical body.
func (res *DocumentResult) WriteText(w io.Writer) error {
	fmt.Fprintf(w, "%s\n", res.Address)
	if res.Acknowledged != nil {
		fmt.Fprintf(w, "acknowledged: %t\n", *res.Acknowledged)
	}
	if res.Same != nil {
		fmt.Fprintf(w, "same instance: %t\n", *res.Same)
	}
	body, err := ir.MarshalCanonical(res.Document)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s\n", body)
	return nil
}

// locate finds the root document and walks to the embedded node at.
func locate(ctx context.Context, s *session.Session, typeName, id, at string) (*document.Node, error) {
	root, err := s.Find(ctx, typeName, id)
	if err != nil {
		return nil, err
	}
	if at == "" {
		return root, nil
	}
	p, err := fieldpath.Parse(at)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeBadInput, Message: err.Error()}
	}
	node, err := path.Walk(root, p)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeBadInput, Message: err.Error()}
	}
	return node, nil
}

func describe(n *document.Node, ack *bool) (*DocumentResult, error) {
	addr, err := path.Resolve(n)
	if err != nil {
		return nil, err
	}
	return &DocumentResult{Address: addr.String(), Acknowledged: ack, Document: n.Raw()}, nil
}

// parseObject decodes a JSON object flag. An empty flag is an empty object.
func parseObject(flag, s string) (ir.IRObject, error) {
	if s == "" {
		return ir.IRObject{}, nil
	}
	var obj ir.IRObject
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, &LoadError{Code: ErrCodeBadInput, Message: fmt.Sprintf("--%s: %v", flag, err)}
	}
	return obj, nil
}

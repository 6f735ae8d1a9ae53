// Package inspect builds rich variable trees out of plain evaluate round trips.
//
// The adapter exposes no structured reflection for JIT compiled code, so the
// tree is discovered: the variable is evaluated, its type string is matched against
// known container signatures, its element count is read from the textual
// summary and each element is evaluated as name[i]. The result is best effort
// by nature. Elements that fail to evaluate are left out of the tree.
package inspect

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/google/go-dap"

	cbdap "github.com/ctagard/cellbridge/internal/dap"
	"github.com/ctagard/cellbridge/pkg/types"
)

// EvaluateContext is the DAP evaluate context used for every evaluation
const EvaluateContext = "watch"

// DefaultMaxElements bounds how many container elements one inspection evaluates
const DefaultMaxElements = 1000

// Evaluator runs one evaluate request against the adapter
type Evaluator interface {
	Evaluate(ctx context.Context, expression string, frameID int, evalContext string) (*dap.EvaluateResponseBody, error)
}

// StoppedThreads reports how many threads are halted
type StoppedThreads interface {
	Len() int
}

// Kind tells the three inspection outcomes apart
type Kind int

const (
	// KindVariable carries a tree in Node
	KindVariable Kind = iota
	// KindUnavailable means nothing is stopped, so no frame can be evaluated in
	KindUnavailable
	// KindNotFound means the adapter could not evaluate the name
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindVariable:
		return "variable"
	case KindUnavailable:
		return "unavailable"
	case KindNotFound:
		return "not_found"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Result is the outcome of one inspection
type Result struct {
	Kind    Kind
	Name    string
	FrameID int
	Node    *types.VariableNode

	// Err is the evaluate failure behind KindNotFound
	Err error
}

// Builder inspects variables through an Evaluator
type Builder struct {
	eval        Evaluator
	threads     StoppedThreads
	maxElements int
	log         logr.Logger
}

// NewBuilder creates a builder. threads gates inspection on a stopped target.
// maxElements caps the elements evaluated per container; 0 selects DefaultMaxElements.
func NewBuilder(eval Evaluator, threads StoppedThreads, maxElements int, log logr.Logger) *Builder {
	if maxElements <= 0 {
		maxElements = DefaultMaxElements
	}
	return &Builder{eval: eval, threads: threads, maxElements: maxElements, log: log}
}

// Inspect evaluates name in frameID and expands it one level if it is a container.
// Failures of the adapter connection itself are returned as an error; every
// other outcome is described by the Result.
func (b *Builder) Inspect(ctx context.Context, name string, frameID int) (*Result, error) {
	res := &Result{Name: name, FrameID: frameID}

	if b.threads.Len() == 0 {
		res.Kind = KindUnavailable
		return res, nil
	}

	body, err := b.eval.Evaluate(ctx, name, frameID, EvaluateContext)
	if err != nil {
		if isTransportFailure(err) {
			return nil, err
		}
		res.Kind = KindNotFound
		res.Err = err
		return res, nil
	}

	root := newNode(name, body)
	if root.IsContainer {
		if root.Children, err = b.expand(ctx, name, frameID, root.Size); err != nil {
			return nil, err
		}
	}

	res.Kind = KindVariable
	res.Node = root
	return res, nil
}

// expand evaluates name[0..size) and returns the elements that evaluated.
// At most maxElements are evaluated; the node keeps the reported size.
// Container elements are marked expandable but not descended into.
func (b *Builder) expand(ctx context.Context, name string, frameID int, size int) ([]*types.VariableNode, error) {
	limit := min(size, b.maxElements)
	if limit < size {
		b.log.V(1).Info("Container expansion truncated", "name", name, "size", size, "limit", limit)
	}

	children := make([]*types.VariableNode, 0, max(limit, 0))
	for i := 0; i < limit; i++ {
		if ctx.Err() != nil {
			break
		}

		expr := fmt.Sprintf("%s[%d]", name, i)
		body, err := b.eval.Evaluate(ctx, expr, frameID, EvaluateContext)
		if err != nil {
			if isTransportFailure(err) {
				return nil, err
			}
			b.log.V(1).Info("Skipping container element", "expression", expr, "reason", err.Error())
			continue
		}

		child := newNode(fmt.Sprintf("[%d]", i), body)
		child.Index = i
		children = append(children, child)
	}
	return children, nil
}

// isTransportFailure reports errors that mean the adapter itself is gone or hung
func isTransportFailure(err error) bool {
	return errors.Is(err, cbdap.ErrTransportClosed) || errors.Is(err, cbdap.ErrRequestTimeout)
}

func newNode(name string, body *dap.EvaluateResponseBody) *types.VariableNode {
	typ := body.Type
	if typ == "" {
		typ = "unknown"
	}

	n := &types.VariableNode{
		Name:  name,
		Value: body.Result,
		Type:  typ,
	}
	if IsContainer(typ) {
		n.IsContainer = true
		n.Size = ParseSize(body.Result)
		n.HasChildren = n.Size > 0
	}
	return n
}

package autodiff

import (
	"errors"
	"fmt"

	"github.com/born-ml/ccml/internal/tensor"
)

// ErrNoDerivative is returned for op tags without a derivative rule.
var ErrNoDerivative = errors.New("no derivative rule")

// partial is the local derivative of a node with respect to one operand.
// An identity partial skips the multiply. A view partial maps the
// gradient back through a reshape or permute instead.
type partial struct {
	id       tensor.NodeID
	identity bool
	view     func(grad tensor.NodeID) (tensor.NodeID, error)
}

var identity = partial{id: tensor.NoNode, identity: true}

func localPartial(ctx *tensor.Context, n *tensor.Node, slot int) (partial, error) {
	x := n.Src[slot]
	var (
		id  tensor.NodeID
		err error
	)
	switch n.Op {
	case tensor.OpLog:
		// d/dx log(x) = 1/x
		id, err = ctx.Recip(x)
	case tensor.OpExp:
		id, err = ctx.Exp(x)
	case tensor.OpSin:
		id, err = ctx.Cos(x)
	case tensor.OpRecip:
		id, err = negRecipSquare(ctx, x)
	case tensor.OpSqrt:
		id, err = halfRecipSqrt(ctx, x, n.DType)
	case tensor.OpMul:
		other := n.Src[1-slot]
		if other == tensor.NoNode {
			return identity, nil
		}
		return partial{id: other}, nil
	case tensor.OpAdd, tensor.OpSum, tensor.OpCopy, tensor.OpSave:
		return identity, nil
	case tensor.OpReshape:
		shape := ctx.Node(x).Shape
		return partial{id: tensor.NoNode, identity: true, view: func(grad tensor.NodeID) (tensor.NodeID, error) {
			return ctx.ReshapeTo(grad, shape)
		}}, nil
	case tensor.OpPermute:
		inv := tensor.InversePerm(n.Perm)
		return partial{id: tensor.NoNode, identity: true, view: func(grad tensor.NodeID) (tensor.NodeID, error) {
			return ctx.Permute(grad, inv[:]...)
		}}, nil
	default:
		return partial{}, fmt.Errorf("%w: %s", ErrNoDerivative, n.Op)
	}
	if err != nil {
		return partial{}, err
	}
	return partial{id: id}, nil
}

// negRecipSquare builds -1/x^2.
func negRecipSquare(ctx *tensor.Context, x tensor.NodeID) (tensor.NodeID, error) {
	sq, err := ctx.Square(x)
	if err != nil {
		return tensor.NoNode, err
	}
	inv, err := ctx.Recip(sq)
	if err != nil {
		return tensor.NoNode, err
	}
	return ctx.Neg(inv)
}

// halfRecipSqrt builds 1/(2*sqrt(x)).
func halfRecipSqrt(ctx *tensor.Context, x tensor.NodeID, dtype tensor.DataType) (tensor.NodeID, error) {
	two, err := ctx.Scalar(dtype, 2)
	if err != nil {
		return tensor.NoNode, err
	}
	root, err := ctx.Sqrt(x)
	if err != nil {
		return tensor.NoNode, err
	}
	twice, err := ctx.Mul(two, root)
	if err != nil {
		return tensor.NoNode, err
	}
	return ctx.Recip(twice)
}

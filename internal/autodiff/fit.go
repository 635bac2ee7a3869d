package autodiff

import "github.com/born-ml/ccml/internal/tensor"

// fit brings a gradient to the shape of the operand it flows into.
//
// Axes the forward pass broadcast are summed away; axes a reduction
// collapsed are expanded again by multiplying with ones.
//
//	Forward:  a[3,1] + b[3,4] -> c[3,4]
//	Backward: grad_c[3,4] -> grad_a[3,1]  (sum over axis 1)
//
//	Forward:  s = sum(x[3,4], axis 1) -> s[3,1]
//	Backward: grad_s[3,1] -> grad_x[3,4]  (grad_s * ones[3,4])
func fit(ctx *tensor.Context, grad tensor.NodeID, target tensor.Shape) (tensor.NodeID, error) {
	n := ctx.Node(grad)
	if n.Shape == target {
		return grad, nil
	}
	dtype := n.DType

	var axes []int
	for i := range tensor.MaxDims {
		if n.Shape[i] != 1 && target[i] == 1 {
			axes = append(axes, i)
		}
	}
	if len(axes) > 0 {
		var err error
		if grad, err = ctx.Sum(grad, axes...); err != nil {
			return tensor.NoNode, err
		}
		if ctx.Node(grad).Shape == target {
			return grad, nil
		}
	}

	ones, err := ctx.Full(dtype, target, 1)
	if err != nil {
		return tensor.NoNode, err
	}
	return ctx.Mul(grad, ones)
}

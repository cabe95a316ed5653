package gpu

import (
	"fmt"
)

// LinearShader generates y = x @ W^T (+ b) for a [Batch, In] input and an
// [Out, In] weight matrix. One invocation computes one output element.
//
// Bindings: input, weights, [bias,] output.
func LinearShader(batch, in, out int, withBias bool, wgx uint32) string {
	biasDecl := ""
	outBinding := 2
	init := "0.0"
	if withBias {
		biasDecl = "@group(0) @binding(2) var<storage, read> bias : array<f32>;"
		outBinding = 3
		init = "bias[o]"
	}
	return fmt.Sprintf(`
		@group(0) @binding(0) var<storage, read> input : array<f32>;
		@group(0) @binding(1) var<storage, read> weights : array<f32>;
		%s
		@group(0) @binding(%d) var<storage, read_write> output : array<f32>;

		const BATCH: u32 = %du;
		const IN_SIZE: u32 = %du;
		const OUT_SIZE: u32 = %du;

		@compute @workgroup_size(%d, 1, 1)
		fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
			let idx = gid.x;
			if (idx >= BATCH * OUT_SIZE) { return; }

			let b = idx / OUT_SIZE;
			let o = idx %% OUT_SIZE;

			var sum: f32 = %s;
			for (var i: u32 = 0u; i < IN_SIZE; i++) {
				sum += input[b * IN_SIZE + i] * weights[o * IN_SIZE + i];
			}
			output[idx] = sum;
		}
	`, biasDecl, outBinding, batch, in, out, wgx, init)
}

// AddShader generates out = a + b over n elements.
func AddShader(n int, wgx uint32) string {
	return fmt.Sprintf(`
		@group(0) @binding(0) var<storage, read> a : array<f32>;
		@group(0) @binding(1) var<storage, read> b : array<f32>;
		@group(0) @binding(2) var<storage, read_write> dst : array<f32>;

		const N: u32 = %du;

		@compute @workgroup_size(%d, 1, 1)
		fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
			let i = gid.x;
			if (i >= N) { return; }
			dst[i] = a[i] + b[i];
		}
	`, n, wgx)
}

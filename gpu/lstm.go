package gpu

import (
	"fmt"
)

// LSTMGateShader generates the gate activation for one step.
//
// Bindings: cell_prev [StateBatch*H], gates [Batch*4H],
// cell_next [StateBatch*H], h_out [Batch*H].
// Gate chunks per row are ordered input, forget, output, candidate.
// Rows at or beyond Batch copy cell_prev into cell_next unchanged.
func LSTMGateShader(batch, stateBatch, hidden int, wgx uint32) string {
	return fmt.Sprintf(`
		@group(0) @binding(0) var<storage, read> cell_prev : array<f32>;
		@group(0) @binding(1) var<storage, read> gates : array<f32>;
		@group(0) @binding(2) var<storage, read_write> cell_next : array<f32>;
		@group(0) @binding(3) var<storage, read_write> h_out : array<f32>;

		const BATCH: u32 = %du;
		const STATE_BATCH: u32 = %du;
		const HIDDEN_SIZE: u32 = %du;

		fn sigmoid(x: f32) -> f32 {
			return 1.0 / (1.0 + exp(-x));
		}

		@compute @workgroup_size(%d, 1, 1)
		fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
			let idx = gid.x;
			if (idx >= STATE_BATCH * HIDDEN_SIZE) { return; }

			let row = idx / HIDDEN_SIZE;
			let j = idx %% HIDDEN_SIZE;

			if (row >= BATCH) {
				cell_next[idx] = cell_prev[idx];
				return;
			}

			let base = row * 4u * HIDDEN_SIZE;
			let i_gate = sigmoid(gates[base + j]);
			let f_gate = sigmoid(gates[base + HIDDEN_SIZE + j]);
			let o_gate = sigmoid(gates[base + 2u * HIDDEN_SIZE + j]);
			let g_gate = tanh(gates[base + 3u * HIDDEN_SIZE + j]);

			let new_c = f_gate * cell_prev[idx] + i_gate * g_gate;
			cell_next[idx] = new_c;
			h_out[row * HIDDEN_SIZE + j] = o_gate * tanh(new_c);
		}
	`, batch, stateBatch, hidden, wgx)
}

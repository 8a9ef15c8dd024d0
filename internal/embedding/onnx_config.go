package embedding

// ONNXConfig describes a local sentence-embedding model.
type ONNXConfig struct {
	ModelPath  string
	VocabPath  string
	Dimensions int
	MaxTokens  int
	// OutputName is the graph output holding embeddings. Models exporting
	// last_hidden_state ([1, tokens, dim]) are mean-pooled over the attention mask.
	OutputName string
	Lowercase  bool
}

func (c *ONNXConfig) applyDefaults() {
	if c.MaxTokens <= 0 {
		c.MaxTokens = 256
	}
	if c.OutputName == "" {
		c.OutputName = "last_hidden_state"
	}
}

// meanPool averages token vectors where mask is set.
func meanPool(hidden []float32, mask []int64, dim int) []float32 {
	out := make([]float32, dim)
	var n float32
	for tok, m := range mask {
		if m == 0 {
			continue
		}
		row := hidden[tok*dim : (tok+1)*dim]
		for i, v := range row {
			out[i] += v
		}
		n++
	}
	if n > 0 {
		for i := range out {
			out[i] /= n
		}
	}
	return out
}

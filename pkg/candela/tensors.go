package candela

import "github.com/candlelight-ml/candela/pkg/nn"

// tensor is a wrapper around a slice of float64 values and a list of dimensions.
type tensor struct {
	data []float64
	dims []int
}

// newTensor creates a new tensor view over the front of data with the given
// dimensions, returning the view and the number of values it consumed.
func newTensor(data []float64, dims ...int) (tensor, int) {
	s := 1
	for _, d := range dims {
		s *= d
	}
	if s > len(data) {
		panic("dimensions larger than supplied data")
	}
	return tensor{
		data: data[:s],
		dims: dims,
	}, s
}

// paramEntry pairs a persisted parameter name with its tensor view.
type paramEntry struct {
	name string
	t    tensor
}

// gruParams are the weights of one GRU cell: input, recurrent and bias terms
// for the update gate, reset gate and candidate state.
type gruParams struct {
	UpdateW tensor // (H, I) - update-gate input weights.
	UpdateU tensor // (H, H) - update-gate recurrent weights.
	UpdateB tensor // (H) - update-gate bias.
	ResetW  tensor // (H, I) - reset-gate input weights.
	ResetU  tensor // (H, H) - reset-gate recurrent weights.
	ResetB  tensor // (H) - reset-gate bias.
	CandW   tensor // (H, I) - candidate-state input weights.
	CandU   tensor // (H, H) - candidate-state recurrent weights.
	CandB   tensor // (H) - candidate-state bias.
}

func gruSize(I, H int) int {
	return 3 * (H*I + H*H + H)
}

// carve slices the cell's views off the front of mem and returns the rest.
func (g *gruParams) carve(mem []float64, I, H int) []float64 {
	var ptr int
	g.UpdateW, ptr = newTensor(mem, H, I)
	mem = mem[ptr:]
	g.UpdateU, ptr = newTensor(mem, H, H)
	mem = mem[ptr:]
	g.UpdateB, ptr = newTensor(mem, H)
	mem = mem[ptr:]
	g.ResetW, ptr = newTensor(mem, H, I)
	mem = mem[ptr:]
	g.ResetU, ptr = newTensor(mem, H, H)
	mem = mem[ptr:]
	g.ResetB, ptr = newTensor(mem, H)
	mem = mem[ptr:]
	g.CandW, ptr = newTensor(mem, H, I)
	mem = mem[ptr:]
	g.CandU, ptr = newTensor(mem, H, H)
	mem = mem[ptr:]
	g.CandB, ptr = newTensor(mem, H)
	mem = mem[ptr:]
	return mem
}

func (g *gruParams) entries() []paramEntry {
	return []paramEntry{
		{"gru.update.weight", g.UpdateW},
		{"gru.update.rec_weight", g.UpdateU},
		{"gru.update.bias", g.UpdateB},
		{"gru.reset.weight", g.ResetW},
		{"gru.reset.rec_weight", g.ResetU},
		{"gru.reset.bias", g.ResetB},
		{"gru.cand.weight", g.CandW},
		{"gru.cand.rec_weight", g.CandU},
		{"gru.cand.bias", g.CandB},
	}
}

// gruStep advances a batch of GRU states one step using the cell's views.
func gruStep(hNext, x, hPrev []float64, g *gruParams, B, I, H int) {
	nn.GRUForward(hNext, x, hPrev,
		g.UpdateW.data, g.UpdateU.data, g.UpdateB.data,
		g.ResetW.data, g.ResetU.data, g.ResetB.data,
		g.CandW.data, g.CandU.data, g.CandB.data,
		B, I, H)
}

// EncoderParams are the encoder's own parameters. The shared embedding table
// is held separately and persisted alongside this set in the encoder section.
type EncoderParams struct {
	Memory []float64
	GRU    gruParams
}

// Init allocates the backing memory and carves the views.
func (p *EncoderParams) Init(embSize, hiddenSize int) {
	p.Memory = make([]float64, gruSize(embSize, hiddenSize))
	rest := p.GRU.carve(p.Memory, embSize, hiddenSize)
	if len(rest) != 0 {
		panic("encoder parameter memory not fully carved")
	}
}

func (p *EncoderParams) entries() []paramEntry {
	return p.GRU.entries()
}

// PlannerParams are the sentence planner's parameters: a GRU cell over
// phrase-bank embeddings, a bilinear attention weight over the bank, and the
// sentence-type readout.
type PlannerParams struct {
	Memory  []float64
	GRU     gruParams
	AttnW   tensor // (H, D) - bilinear score weight over phrase-bank vectors.
	StOutW  tensor // (S, H+D) - sentence-type readout over [state; context].
	StOutB  tensor // (S) - sentence-type readout bias.
}

// Init allocates the backing memory and carves the views.
func (p *PlannerParams) Init(embSize, hiddenSize int) {
	H, D, S := hiddenSize, embSize, SentenceTypeCount
	p.Memory = make([]float64, gruSize(D, H)+H*D+S*(H+D)+S)
	mem := p.GRU.carve(p.Memory, D, H)
	var ptr int
	p.AttnW, ptr = newTensor(mem, H, D)
	mem = mem[ptr:]
	p.StOutW, ptr = newTensor(mem, S, H+D)
	mem = mem[ptr:]
	p.StOutB, ptr = newTensor(mem, S)
	mem = mem[ptr:]
	if len(mem) != 0 {
		panic("planner parameter memory not fully carved")
	}
}

func (p *PlannerParams) entries() []paramEntry {
	return append(p.GRU.entries(),
		paramEntry{"phrase_attn.weight", p.AttnW},
		paramEntry{"sent_type_out.weight", p.StOutW},
		paramEntry{"sent_type_out.bias", p.StOutB},
	)
}

// DecoderParams are the word decoder's parameters: a GRU cell over
// [word embedding; routed planner state], bilinear attention over the encoder
// memory bank, and the vocabulary readout.
type DecoderParams struct {
	Memory []float64
	GRU    gruParams
	AttnW  tensor // (H, H) - bilinear score weight over encoder memory.
	OutW   tensor // (V, 2H) - vocabulary readout over [state; context].
	OutB   tensor // (V) - vocabulary readout bias.
}

// Init allocates the backing memory and carves the views.
func (p *DecoderParams) Init(embSize, hiddenSize, vocabSize int) {
	H, V := hiddenSize, vocabSize
	I := embSize + hiddenSize
	p.Memory = make([]float64, gruSize(I, H)+H*H+V*2*H+V)
	mem := p.GRU.carve(p.Memory, I, H)
	var ptr int
	p.AttnW, ptr = newTensor(mem, H, H)
	mem = mem[ptr:]
	p.OutW, ptr = newTensor(mem, V, 2*H)
	mem = mem[ptr:]
	p.OutB, ptr = newTensor(mem, V)
	mem = mem[ptr:]
	if len(mem) != 0 {
		panic("decoder parameter memory not fully carved")
	}
}

func (p *DecoderParams) entries() []paramEntry {
	return append(p.GRU.entries(),
		paramEntry{"enc_attn.weight", p.AttnW},
		paramEntry{"vocab_out.weight", p.OutW},
		paramEntry{"vocab_out.bias", p.OutB},
	)
}

package candela

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/candlelight-ml/candela/pkg/nn"
)

const (
	checkpointMagic   int32 = 20190215
	checkpointVersion int32 = 1

	sectionEncoder = "encoder"
	sectionPlanner = "sp_decoder"
	sectionWordDec = "wd_decoder"

	embeddingEntry = "embedding.weight"

	// maxEntryRank caps the persisted tensor rank during schema validation.
	maxEntryRank = 4
)

var (
	// ErrBadCheckpoint reports a malformed or truncated checkpoint file.
	ErrBadCheckpoint = errors.New("candela: malformed checkpoint")
	// ErrShapeMismatch reports a persisted parameter whose shape does not
	// match the freshly constructed model. Fatal: loading would put wrong
	// weights into the wrong views.
	ErrShapeMismatch = errors.New("candela: checkpoint shape mismatch")
)

// ckptEntry is one parameter as read back from disk.
type ckptEntry struct {
	dims []int
	data []float64
}

// sectionEntries returns the named parameter views persisted under section.
// The encoder section carries the shared embedding table so that a loader can
// derive vocabulary size and embedding width from its shape alone.
func (m *Model) sectionEntries(section string) []paramEntry {
	switch section {
	case sectionEncoder:
		es := []paramEntry{{
			name: embeddingEntry,
			t: tensor{
				data: m.Embedding.Weights,
				dims: []int{m.Embedding.VocabSize, m.Embedding.Dim},
			},
		}}
		return append(es, m.Enc.Params.entries()...)
	case sectionPlanner:
		return m.SpDec.Params.entries()
	case sectionWordDec:
		return m.WdDec.Params.entries()
	}
	panic("unknown checkpoint section " + section)
}

// Save writes the model's three parameter sections to w in the binary
// little-endian checkpoint layout.
func (m *Model) Save(w io.Writer) error {
	if err := binary.Write(w, binary.LittleEndian, [2]int32{checkpointMagic, checkpointVersion}); err != nil {
		return err
	}
	for _, section := range []string{sectionEncoder, sectionPlanner, sectionWordDec} {
		entries := m.sectionEntries(section)
		if err := writeString(w, section); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, int32(len(entries))); err != nil {
			return err
		}
		for _, e := range entries {
			if err := writeString(w, e.name); err != nil {
				return err
			}
			if err := binary.Write(w, binary.LittleEndian, int32(len(e.t.dims))); err != nil {
				return err
			}
			for _, d := range e.t.dims {
				if err := binary.Write(w, binary.LittleEndian, int32(d)); err != nil {
					return err
				}
			}
			if err := binary.Write(w, binary.LittleEndian, e.t.data); err != nil {
				return err
			}
		}
	}
	return nil
}

// SaveFile writes the checkpoint to path.
func (m *Model) SaveFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	if err := m.Save(w); err != nil {
		return err
	}
	return w.Flush()
}

// LoadModel reconstructs a model from a checkpoint. The embedding table and
// its dimensions are rebuilt from the encoder section's embedding.weight
// entry (the only shape that is load-bearing for configuration), the three
// components are constructed around that shared table, and each section is
// loaded into its component's parameter views. A missing section, unknown
// entry or shape mismatch is a fatal, unrecoverable error.
func LoadModel(r io.Reader) (*Model, error) {
	var header [2]int32
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("%w: reading header: %v", ErrBadCheckpoint, err)
	}
	if header[0] != checkpointMagic || header[1] != checkpointVersion {
		return nil, fmt.Errorf("%w: bad magic/version %d/%d", ErrBadCheckpoint, header[0], header[1])
	}
	sections := make(map[string]map[string]ckptEntry, 3)
	for _, want := range []string{sectionEncoder, sectionPlanner, sectionWordDec} {
		name, entries, err := readSection(r)
		if err != nil {
			return nil, err
		}
		if name != want {
			return nil, fmt.Errorf("%w: expected section %q, got %q", ErrBadCheckpoint, want, name)
		}
		sections[name] = entries
	}
	embEntry, ok := sections[sectionEncoder][embeddingEntry]
	if !ok {
		return nil, fmt.Errorf("%w: encoder section is missing %s", ErrBadCheckpoint, embeddingEntry)
	}
	if len(embEntry.dims) != 2 {
		return nil, fmt.Errorf("%w: %s has rank %d, want 2", ErrShapeMismatch, embeddingEntry, len(embEntry.dims))
	}
	delete(sections[sectionEncoder], embeddingEntry)
	emb, err := nn.NewEmbedding(embEntry.data, embEntry.dims[0], embEntry.dims[1], PadID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadCheckpoint, err)
	}
	model := NewModel(emb)
	apply := []struct {
		section  string
		expected []paramEntry
	}{
		{sectionEncoder, model.Enc.Params.entries()},
		{sectionPlanner, model.SpDec.Params.entries()},
		{sectionWordDec, model.WdDec.Params.entries()},
	}
	for _, a := range apply {
		if err := applySection(a.section, a.expected, sections[a.section]); err != nil {
			return nil, err
		}
	}
	return model, nil
}

// LoadModelFile reconstructs a model from the checkpoint at path.
func LoadModelFile(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadModel(bufio.NewReader(f))
}

// applySection copies persisted entries into the component's parameter views,
// validating names and shapes.
func applySection(section string, expected []paramEntry, got map[string]ckptEntry) error {
	if len(got) != len(expected) {
		return fmt.Errorf("%w: section %s has %d entries, want %d", ErrBadCheckpoint, section, len(got), len(expected))
	}
	for _, pe := range expected {
		e, ok := got[pe.name]
		if !ok {
			return fmt.Errorf("%w: section %s is missing parameter %s", ErrBadCheckpoint, section, pe.name)
		}
		if !equalDims(e.dims, pe.t.dims) {
			return fmt.Errorf("%w: %s/%s has shape %v, want %v", ErrShapeMismatch, section, pe.name, e.dims, pe.t.dims)
		}
		copy(pe.t.data, e.data)
	}
	return nil
}

// readSection parses one named section: a count-prefixed list of
// (name, rank, dims..., float64 data) entries.
func readSection(r io.Reader) (string, map[string]ckptEntry, error) {
	name, err := readString(r)
	if err != nil {
		return "", nil, fmt.Errorf("%w: reading section name: %v", ErrBadCheckpoint, err)
	}
	var count int32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return "", nil, fmt.Errorf("%w: reading section %s: %v", ErrBadCheckpoint, name, err)
	}
	if count < 0 {
		return "", nil, fmt.Errorf("%w: section %s has negative entry count", ErrBadCheckpoint, name)
	}
	entries := make(map[string]ckptEntry, count)
	for i := int32(0); i < count; i++ {
		ename, err := readString(r)
		if err != nil {
			return "", nil, fmt.Errorf("%w: reading entry name in %s: %v", ErrBadCheckpoint, name, err)
		}
		var rank int32
		if err := binary.Read(r, binary.LittleEndian, &rank); err != nil {
			return "", nil, fmt.Errorf("%w: reading %s/%s: %v", ErrBadCheckpoint, name, ename, err)
		}
		if rank < 1 || rank > maxEntryRank {
			return "", nil, fmt.Errorf("%w: %s/%s has rank %d", ErrBadCheckpoint, name, ename, rank)
		}
		dims := make([]int, rank)
		size := 1
		for j := range dims {
			var d int32
			if err := binary.Read(r, binary.LittleEndian, &d); err != nil {
				return "", nil, fmt.Errorf("%w: reading %s/%s dims: %v", ErrBadCheckpoint, name, ename, err)
			}
			if d < 1 {
				return "", nil, fmt.Errorf("%w: %s/%s has dimension %d", ErrBadCheckpoint, name, ename, d)
			}
			dims[j] = int(d)
			size *= int(d)
		}
		data := make([]float64, size)
		if err := binary.Read(r, binary.LittleEndian, data); err != nil {
			return "", nil, fmt.Errorf("%w: reading %s/%s data: %v", ErrBadCheckpoint, name, ename, err)
		}
		if _, dup := entries[ename]; dup {
			return "", nil, fmt.Errorf("%w: section %s repeats parameter %s", ErrBadCheckpoint, name, ename)
		}
		entries[ename] = ckptEntry{dims: dims, data: data}
	}
	return name, entries, nil
}

func equalDims(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, int32(len(s))); err != nil {
		return err
	}
	_, err := w.Write([]byte(s))
	return err
}

func readString(r io.Reader) (string, error) {
	var n int32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	if n < 0 || n > 1<<10 {
		return "", fmt.Errorf("string length %d out of range", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

package fs

import (
	"bytes"
	"fmt"
	"net/url"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/aretw0/sealnote/pkg/core"
)

type stagedOp struct {
	table  string
	id     string
	data   []byte
	delete bool
}

// Transaction implements core.Transaction for the filesystem. Changes are
// staged in memory and only reach the disk when the repository commits them.
type Transaction struct {
	mu     sync.Mutex
	ops    []stagedOp
	index  map[string]int // table/id -> position in ops
	closed bool
}

func newTransaction() *Transaction {
	return &Transaction{index: make(map[string]int)}
}

func (t *Transaction) stage(op stagedOp) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return fmt.Errorf("transaction closed")
	}

	key := op.table + "/" + op.id
	if i, ok := t.index[key]; ok {
		t.ops[i] = op
		return nil
	}
	t.index[key] = len(t.ops)
	t.ops = append(t.ops, op)
	return nil
}

// PutMetadata stages a metadata record.
func (t *Transaction) PutMetadata(id string, rec core.Record) error {
	data, err := yaml.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", id, err)
	}
	return t.stage(stagedOp{table: core.TableMetadata, id: id, data: data})
}

// PutContent stages a ciphertext.
func (t *Transaction) PutContent(id string, content []byte) error {
	return t.stage(stagedOp{table: core.TableContent, id: id, data: bytes.Clone(content)})
}

// DeleteMetadata stages the removal of a metadata record.
func (t *Transaction) DeleteMetadata(id string) error {
	return t.stage(stagedOp{table: core.TableMetadata, id: id, delete: true})
}

// DeleteContent stages the removal of a ciphertext.
func (t *Transaction) DeleteContent(id string) error {
	return t.stage(stagedOp{table: core.TableContent, id: id, delete: true})
}

// seal closes the transaction and hands its staged operations over.
func (t *Transaction) seal() []stagedOp {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return t.ops
}

// fileName maps an id to the file it is stored under in table.
func fileName(table, id string) string {
	ext := metadataExt
	if table == core.TableContent {
		ext = core.ExportExtension
	}
	return url.PathEscape(id) + ext
}

// idFromFile is the inverse of fileName.
func idFromFile(name, ext string) (string, bool) {
	if len(name) <= len(ext) || name[len(name)-len(ext):] != ext {
		return "", false
	}
	id, err := url.PathUnescape(name[:len(name)-len(ext)])
	if err != nil {
		return "", false
	}
	return id, true
}

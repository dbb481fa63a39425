// Package image stores assembled programs on disk so they can be run without
// re-assembly.
//
// An image file starts with the 4-byte magic "WVMI" and a little-endian
// uint32 format version, followed by the image as canonical CBOR.
package image

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/chazu/wordvm/asm"
	"github.com/chazu/wordvm/vm"
)

// Magic identifies a wordvm image file.
var Magic = [4]byte{'W', 'V', 'M', 'I'}

// Version is the current image format version.
const Version uint32 = 1

const headerSize = len(Magic) + 4

// ErrBadImage is returned when decoding data that is not a valid image.
var ErrBadImage = errors.New("image: bad image")

// Image is an assembled program with the tables it was linked against.
type Image struct {
	Version uint32            `cbor:"-"`
	ID      string            `cbor:"1,keyasint"`
	Name    string            `cbor:"2,keyasint"`
	Code    []int64           `cbor:"3,keyasint"`
	Labels  map[string]int64  `cbor:"4,keyasint,omitempty"`
	Natives map[string]int64  `cbor:"5,keyasint,omitempty"`
	Entry   int64             `cbor:"6,keyasint"` // initial PC
	Created int64             `cbor:"7,keyasint"` // unix seconds
	Hash    [sha256.Size]byte `cbor:"8,keyasint"` // sha256 of Code
}

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("image: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// EntryLabel names the label execution starts at. Programs without it start
// at address 0.
const EntryLabel = "main"

// New returns an image of code with a fresh ID. Entry is the address of
// EntryLabel if labels declares it.
func New(name string, code []vm.Word, labels, natives map[string]vm.Word) *Image {
	img := &Image{
		Version: Version,
		ID:      uuid.NewString(),
		Name:    name,
		Code:    vm.Ints(code),
		Labels:  toInts(labels),
		Natives: toInts(natives),
		Created: time.Now().Unix(),
	}
	if addr, ok := labels[EntryLabel]; ok {
		img.Entry = int64(addr)
	}
	img.Hash = hashCode(img.Code)
	return img
}

// FromResult returns an image of an assembled program.
func FromResult(name string, res *asm.Result) *Image {
	return New(name, res.Code, res.Labels, res.Natives)
}

// Words returns the program as VM words.
func (img *Image) Words() []vm.Word { return vm.Words(img.Code) }

// LabelTable returns the label table in the form the disassembler expects.
func (img *Image) LabelTable() asm.Labels {
	t := make(asm.Labels, len(img.Labels))
	for name, addr := range img.Labels {
		t[name] = vm.Word(addr)
	}
	return t
}

func toInts(t map[string]vm.Word) map[string]int64 {
	if len(t) == 0 {
		return nil
	}
	m := make(map[string]int64, len(t))
	for k, v := range t {
		m[k] = int64(v)
	}
	return m
}

func hashCode(code []int64) [sha256.Size]byte {
	buf := make([]byte, 8*len(code))
	for i, w := range code {
		binary.LittleEndian.PutUint64(buf[8*i:], uint64(w))
	}
	return sha256.Sum256(buf)
}

// Marshal serializes an image, header included.
func Marshal(img *Image) ([]byte, error) {
	body, err := cborEncMode.Marshal(img)
	if err != nil {
		return nil, fmt.Errorf("image: marshal: %w", err)
	}
	buf := make([]byte, headerSize, headerSize+len(body))
	copy(buf, Magic[:])
	binary.LittleEndian.PutUint32(buf[len(Magic):], Version)
	return append(buf, body...), nil
}

// Unmarshal deserializes an image and verifies its header and code hash.
func Unmarshal(data []byte) (*Image, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: truncated header", ErrBadImage)
	}
	if !bytes.Equal(data[:len(Magic)], Magic[:]) {
		return nil, fmt.Errorf("%w: invalid magic %q", ErrBadImage, data[:len(Magic)])
	}
	if v := binary.LittleEndian.Uint32(data[len(Magic):]); v != Version {
		return nil, fmt.Errorf("%w: version %d, expected %d", ErrBadImage, v, Version)
	}
	var img Image
	if err := cbor.Unmarshal(data[headerSize:], &img); err != nil {
		return nil, fmt.Errorf("%w: unmarshal: %v", ErrBadImage, err)
	}
	if hashCode(img.Code) != img.Hash {
		return nil, fmt.Errorf("%w: code hash mismatch", ErrBadImage)
	}
	img.Version = Version
	return &img, nil
}

// Encode writes img to w.
func Encode(w io.Writer, img *Image) error {
	data, err := Marshal(img)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// Decode reads an image from r.
func Decode(r io.Reader) (*Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("image: read: %w", err)
	}
	return Unmarshal(data)
}

// Save writes img to the file at path.
func Save(path string, img *Image) error {
	data, err := Marshal(img)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("image: %w", err)
	}
	return nil
}

// Load reads the image file at path.
func Load(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("image: %w", err)
	}
	img, err := Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

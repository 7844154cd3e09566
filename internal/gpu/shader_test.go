package gpu

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	. "github.com/onsi/gomega"
)

func TestBytesToBytecode(t *testing.T) {
	g := NewWithT(t)

	code, err := BytesToBytecode([]byte{0x03, 0x02, 0x23, 0x07, 0x00, 0x00, 0x01, 0x00})
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(code).To(Equal([]uint32{0x07230203, 0x00010000}))

	_, err = BytesToBytecode([]byte{1, 2, 3})
	g.Expect(errors.Is(err, ErrInvalidShaderCode)).To(BeTrue())

	_, err = BytesToBytecode(nil)
	g.Expect(errors.Is(err, ErrInvalidShaderCode)).To(BeTrue())
}

func TestLoadShaderCode(t *testing.T) {
	g := NewWithT(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "computeShader.spv")
	g.Expect(os.WriteFile(path, []byte{0x03, 0x02, 0x23, 0x07}, 0o644)).To(Succeed())

	code, err := LoadShaderCode(path)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(code).To(Equal([]uint32{0x07230203}))

	_, err = LoadShaderCode(filepath.Join(dir, "missing.spv"))
	g.Expect(err).To(HaveOccurred())
}

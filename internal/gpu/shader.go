package gpu

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// BytesToBytecode packs little-endian SPIR-V bytes into words.
func BytesToBytecode(b []byte) ([]uint32, error) {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, errors.Wrapf(ErrInvalidShaderCode, "%d bytes", len(b))
	}

	byteCode := make([]uint32, len(b)/4)
	for i := 0; i < len(byteCode); i++ {
		byteIndex := i * 4
		byteCode[i] = 0
		byteCode[i] |= uint32(b[byteIndex])
		byteCode[i] |= uint32(b[byteIndex+1]) << 8
		byteCode[i] |= uint32(b[byteIndex+2]) << 16
		byteCode[i] |= uint32(b[byteIndex+3]) << 24
	}

	return byteCode, nil
}

func LoadShaderCode(path string) ([]uint32, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read shader")
	}

	code, err := BytesToBytecode(b)
	return code, errors.Wrapf(err, "load shader %s", path)
}

func createShaderModule(driver core1_0.DeviceDriver, code []uint32) (core1_0.ShaderModule, error) {
	module, _, err := driver.CreateShaderModule(nil, core1_0.ShaderModuleCreateInfo{
		Code: code,
	})
	return module, errors.Wrap(err, "create shader module")
}

// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package effc

import "code.hybscloud.com/atomix"

// Serial is a monotonically increasing continuation identifier.
// Each captured continuation, and each clone, receives the next value.
type Serial = uint32

// contCounter is the global monotonic counter for continuation serials.
var contCounter atomix.Uint32

// nextSerial returns the next monotonically increasing serial.
func nextSerial() Serial {
	return contCounter.Add(1)
}

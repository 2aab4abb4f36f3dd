package ndn

import (
	"time"

	"github.com/WebFirstLanguage/beenet/pkg/constants"
)

const (
	defaultResendInterval = constants.NDNResendInterval
	defaultBlockInterval  = constants.NDNBlockInterval
	defaultResendTimeout  = constants.NDNResendTimeout
	defaultMSL            = constants.NDNMSL
)

// now is overridable in tests that need deterministic time.
var now = time.Now

package protocol

// Party endpoints. Paths that take a parameter are listed without it; append
// "/" and the value.
const (
	PathStatus        = "/api/status"
	PathInitialValues = "/api/initial-values"

	PathReset            = "/api/reset"
	PathFactoryReset     = "/api/factory-reset"
	PathResetCalculation = "/api/reset-calculation"
	PathResetComparison  = "/api/reset-comparison"

	PathGetBidders = "/api/get-bidders"
	PathSetShares  = "/api/set-shares"

	PathRedistributeQ                = "/api/redistribute-q"
	PathRedistributeR                = "/api/redistribute-r"
	PathRedistributeU                = "/api/redistribute-u"
	PathCalculateSharedU             = "/api/calculate-shared-u"
	PathCalculateMultiplicativeShare = "/api/calculate-multiplicative-share"
	PathCalculateAdditiveShare       = "/api/calculate-additive-share"
	PathCalculateXorShare            = "/api/calculate-xor-share"
	PathSetAdditiveShare             = "/api/set-additive-share"
	PathSetMultiplicativeShare       = "/api/set-multiplicative-share"
	PathSetXorShare                  = "/api/set-xor-share"
	PathXor                          = "/api/xor"

	PathSetTemporaryRandomBitShare   = "/api/set-temporary-random-bit-share"
	PathCalculateShareOfRandomNumber = "/api/calculate-share-of-random-number"
	PathCalculateAComparison         = "/api/calculate-a-comparison"
	PathReconstructSecret            = "/api/reconstruct-secret"

	PathCalculateZComparison           = "/api/calculate-z-comparison"
	PathCalculateAdditiveShareOfZTable = "/api/calculate-additive-share-of-z-table"
	PathCalculateROfZTable             = "/api/calculate-r-of-z-table"
	PathSetZTableToXorShare            = "/api/set-z-table-to-xor-share"
	PathPopZZ                          = "/api/pop-zZ"
	PathPrepareZTables                 = "/api/prepare-z-tables"
	PathInitializeZAndZ                = "/api/initialize-z-and-Z"
	PathPrepareForNextRomb             = "/api/prepare-for-next-romb"
	PathPrepareSharesForResXors        = "/api/prepare-shares-for-res-xors"
	PathCalculateComparisonResult      = "/api/calculate-comparison-result"

	// Party to party.
	PathSubShare = "/api/internal/sub-share"
	PathShare    = "/api/internal/share"
)

// Names of the intermediate shares the driver refers to.
const (
	ShareU                     = "u"
	ShareV                     = "v"
	ShareInverseW              = "dummy_sharing_of_inverse_w_"
	ShareInverseWTimesU        = "inverse_w_times_u"
	ShareOne                   = "dummy_sharing_of_one"
	ShareInverseWTimesUPlusOne = "inverse_w_times_u_plus_one"
	ShareInverseTwo            = "dummy_sharing_of_inverse_two"
	ShareTemporaryRandomBit    = "temporary_random_bit"

	ShareRandomNumber = "r"
	ShareComparisonA  = "comparison_a"

	// Propagate accumulators.
	ShareLowerX = "x"
	ShareLowerY = "y"
	ShareLowerZ = "z"
	// Carry accumulators.
	ShareUpperX = "X"
	ShareUpperY = "Y"
	ShareUpperZ = "Z"

	ShareAL  = "a_l"
	ShareRL  = "r_l"
	ShareRes = "res"
)

// Openable reports whether a named value may be reconstructed. Only the
// values the comparison reveals by construction qualify; the mask r and
// every intermediate stay shared.
func Openable(name string) bool {
	switch name {
	case ShareV, ShareComparisonA, ShareRes, ShareTemporaryRandomBit:
		return true
	}
	return false
}

// Sub-share kinds exchanged between parties.
const (
	SubShareProduct = "product"
	SubShareRandom  = "random"
)

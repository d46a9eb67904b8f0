package fund

import "math/big"

// Precision is the fixed-point scale used for unit prices (8 decimals).
var Precision = big.NewInt(100_000_000)

// feePercent is the entry/exit fee in parts per hundred.
var feePercent = big.NewInt(2)

var (
	hundred    = big.NewInt(100)
	twoHundred = big.NewInt(200)
	one        = big.NewInt(1)

	// maxUint128 is the envelope every amount must stay within; products
	// beyond it trigger the divide-first fallback.
	maxUint128 = new(big.Int).Sub(new(big.Int).Lsh(one, 128), one)
)

// weightScale is the parts-per-thousand denominator for target weights.
const weightScale = 1000

var weightScaleInt = big.NewInt(weightScale)

// mulDiv computes a*b/c without letting the intermediate product escape
// the 128-bit envelope. When a*b fits, the multiply-first path keeps full
// precision; otherwise it divides first, trading low-order precision for
// a bounded intermediate. Both paths floor. A zero divisor yields zero.
func mulDiv(a, b, c *big.Int) *big.Int {
	if a == nil || b == nil || c == nil || c.Sign() == 0 {
		return big.NewInt(0)
	}
	product := new(big.Int).Mul(a, b)
	if product.BitLen() > 128 {
		quotient := new(big.Int).Quo(a, c)
		return quotient.Mul(quotient, b)
	}
	return product.Quo(product, c)
}

// feeShares is the three-way split of a gross token amount.
type feeShares struct {
	Recipient *big.Int
	Admin     *big.Int
	Fund      *big.Int
}

// splitFee divides a gross amount into the recipient share and the two
// halves of the fee, flooring each share independently.
func splitFee(gross *big.Int) feeShares {
	if gross == nil || gross.Sign() <= 0 {
		return feeShares{Recipient: big.NewInt(0), Admin: big.NewInt(0), Fund: big.NewInt(0)}
	}
	recipient := new(big.Int).Sub(hundred, feePercent)
	recipient.Mul(recipient, gross)
	recipient.Quo(recipient, hundred)
	admin := new(big.Int).Mul(feePercent, gross)
	admin.Quo(admin, twoHundred)
	fund := new(big.Int).Mul(feePercent, gross)
	fund.Quo(fund, twoHundred)
	return feeShares{Recipient: recipient, Admin: admin, Fund: fund}
}

// unitPrice derives the fixed-point price of one unit from the basket's
// aggregate value and the outstanding supply. Zero supply prices the unit
// at exactly 1.0 (Precision).
func unitPrice(totalValue, supply *big.Int) *big.Int {
	if supply == nil || supply.Sign() == 0 {
		return new(big.Int).Set(Precision)
	}
	if totalValue == nil {
		return big.NewInt(0)
	}
	return mulDiv(totalValue, Precision, supply)
}

// tokensForDeposit converts a native deposit into units at the supplied
// price. A zero price falls back to the identity conversion.
func tokensForDeposit(deposit, price *big.Int) *big.Int {
	if price == nil || price.Sign() == 0 {
		return new(big.Int).Set(deposit)
	}
	return mulDiv(deposit, Precision, price)
}

// nativeForTokens converts a unit amount back into native currency at the
// supplied price. A zero price falls back to the identity conversion.
func nativeForTokens(tokens, price *big.Int) *big.Int {
	if price == nil || price.Sign() == 0 {
		return new(big.Int).Set(tokens)
	}
	return mulDiv(price, tokens, Precision)
}

func cloneAmount(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

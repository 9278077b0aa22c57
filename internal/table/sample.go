package table

import (
	"math"
	"math/rand"
	"strconv"
)

// SampleCustomers generates a synthetic customer dataset: demographics,
// income, spending and satisfaction, with about 2% of incomes missing.
// The same seed always yields the same table.
func SampleCustomers(n int, seed int64) *Table {
	rng := rand.New(rand.NewSource(seed))

	ids := make([]float64, n)
	age := make([]float64, n)
	income := make([]float64, n)
	spending := make([]float64, n)
	gender := make([]string, n)
	city := make([]string, n)
	years := make([]float64, n)
	freq := make([]float64, n)
	satisfaction := make([]string, n)

	cities := []string{"Tokyo", "Osaka", "Kyoto", "Yokohama", "Kobe"}
	satWeights := []float64{0.05, 0.15, 0.3, 0.35, 0.15}

	for i := 0; i < n; i++ {
		ids[i] = float64(i + 1)
		age[i] = clamp(math.Trunc(rng.NormFloat64()*12+35), 18, 80)
		income[i] = clamp(rng.NormFloat64()*15000+50000, 20000, 150000)
		spending[i] = clamp(rng.NormFloat64()*25+50, 0, 100)
		if rng.Intn(2) == 0 {
			gender[i] = "Male"
		} else {
			gender[i] = "Female"
		}
		city[i] = cities[rng.Intn(len(cities))]
		years[i] = clamp(float64(poisson(rng, 3)), 0, 20)
		freq[i] = clamp(float64(poisson(rng, 12)), 0, 50)
		satisfaction[i] = strconv.Itoa(weighted(rng, satWeights) + 1)
	}

	for _, i := range rng.Perm(n)[:n/50] {
		income[i] = math.NaN()
	}

	t, err := New("customers",
		NewNumericColumn("customer_id", ids),
		NewNumericColumn("age", age),
		NewNumericColumn("annual_income", income),
		NewNumericColumn("spending_score", spending),
		NewStringColumn("gender", gender),
		NewStringColumn("city", city),
		NewNumericColumn("membership_years", years),
		NewNumericColumn("purchase_frequency", freq),
		NewStringColumn("satisfaction_score", satisfaction),
	)
	if err != nil {
		// Column lengths are equal by construction.
		panic(err)
	}
	return t
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// poisson draws using Knuth's method, adequate for small lambda.
func poisson(rng *rand.Rand, lambda float64) int {
	l := math.Exp(-lambda)
	k, p := 0, 1.0
	for {
		p *= rng.Float64()
		if p <= l {
			return k
		}
		k++
	}
}

func weighted(rng *rand.Rand, weights []float64) int {
	r := rng.Float64()
	for i, w := range weights {
		if r < w {
			return i
		}
		r -= w
	}
	return len(weights) - 1
}

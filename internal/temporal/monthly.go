package temporal

const (
	daysPerYear      = 365
	eightDayPeriods  = 46
	eightDayInterval = 8
)

var (
	monthStartDoY = [12]int{1, 32, 60, 91, 121, 152, 182, 213, 244, 274, 305, 335}
	monthLength   = [12]int{31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}
)

// MonthlyWeighting is the climatological weight of every day of the year for
// each month, used to average 8-day products into monthly ones. It is built
// once per run and never modified.
type MonthlyWeighting struct {
	weights [12][daysPerYear]float64
}

// NewMonthlyWeighting builds the table for the given half-life.
//
// Each 8-day period starting at doy 1+8i inside [monthStart-8, monthEnd+8]
// contributes its decay weight, tapered towards the month edges by
// 0.5·distance+0.5, and the sum is normalized by the taper weights.
func NewMonthlyWeighting(halfLife float64) *MonthlyWeighting {
	// periods[i] are the 8-day start days plus the first period of the next year.
	var periods [eightDayPeriods + 1]int
	for i := 0; i < eightDayPeriods; i++ {
		periods[i] = 1 + eightDayInterval*i
	}
	periods[eightDayPeriods] = 369

	var decay [eightDayPeriods + 1][daysPerYear]float64
	for i, p := range periods {
		for day := 1; day <= daysPerYear; day++ {
			decay[i][day-1] = DecayWeight(float64(day-p), halfLife)
		}
	}

	mw := &MonthlyWeighting{}
	for month := 0; month < 12; month++ {
		start := monthStartDoY[month]
		end := start + monthLength[month]
		for day := 1; day <= daysPerYear; day++ {
			var nd, sum float64
			for i := 0; i < eightDayPeriods; i++ {
				doy := periods[i]
				if doy < start-eightDayInterval || doy > end+eightDayInterval {
					continue
				}
				taper := 1.0
				if doy >= end-eightDayInterval {
					taper = float64(end-doy)/eightDayInterval*0.5 + 0.5
				}
				if doy <= start+eightDayInterval {
					taper = float64(start+eightDayInterval-doy)/eightDayInterval*0.5 + 0.5
				}
				nd += taper
				// The decay row is that of the following period.
				sum += decay[(doy+eightDayInterval-1)/eightDayInterval][day-1] * taper
			}
			mw.weights[month][day-1] = sum / nd
		}
	}
	return mw
}

// Weight returns the weight of day-of-year doy for month (1-12). Leap day 366
// uses the weight of day 365. Out-of-range arguments give 0.
func (mw *MonthlyWeighting) Weight(month, doy int) float64 {
	if month < 1 || month > 12 || doy < 1 {
		return 0
	}
	doy = min(doy, daysPerYear)
	return mw.weights[month-1][doy-1]
}

// Row returns the 365 weights of month (1-12).
func (mw *MonthlyWeighting) Row(month int) []float64 {
	if month < 1 || month > 12 {
		return nil
	}
	row := mw.weights[month-1]
	return row[:]
}

// MonthOfYearDay returns the month (1-12) containing day-of-year doy in a
// non-leap year.
func MonthOfYearDay(doy int) int {
	for m := 11; m >= 0; m-- {
		if doy >= monthStartDoY[m] {
			return m + 1
		}
	}
	return 1
}

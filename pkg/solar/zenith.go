// Package solar computes the solar zenith angle used to turn BRDF parameters
// into black-sky albedo.
package solar

import (
	"math"
	"time"

	"github.com/soniakeys/meeus/v3/base"
	"github.com/soniakeys/meeus/v3/julian"
	"github.com/soniakeys/meeus/v3/nutation"
	meeussolar "github.com/soniakeys/meeus/v3/solar"
)

// NoonZenith returns the solar zenith angle in degrees at local solar noon
// for a latitude and day of year, using a cosine fit of the declination.
// Products are defined at a fixed local solar time of 12:00, so the hour
// angle is zero.
func NoonZenith(latitude float64, doy int) float64 {
	delta := -23.45 * math.Pi / 180 * math.Cos(2*math.Pi/365*float64(doy+10))
	lat := latitude * math.Pi / 180
	return math.Acos(math.Sin(lat)*math.Sin(delta)+math.Cos(lat)*math.Cos(delta)) * 180 / math.Pi
}

// Position is the apparent position of the sun for an observer.
type Position struct {
	DeclinationDeg float64
	EqOfTimeMin    float64
	HourAngleDeg   float64
	ZenithDeg      float64
	CosZenith      float64
}

// SunPosition returns the position of the sun at t for an observer at
// latitude/longitude in degrees (east positive). Declination and right
// ascension are the apparent ones of Meeus ch. 25; the equation of time
// follows ch. 28. The difference between TT and UT is ignored.
func SunPosition(t time.Time, latitude, longitude float64) Position {
	t = t.UTC()
	jd := julian.TimeToJD(t)

	ra, dec := meeussolar.ApparentEquatorial(jd)
	eot := equationOfTime(jd, float64(ra))

	minutes := float64(t.Hour()*60+t.Minute()) + float64(t.Second())/60
	ha := (minutes+4*longitude+eot)/4 - 180

	lat := latitude * math.Pi / 180
	d := float64(dec)
	cosZen := math.Sin(lat)*math.Sin(d) + math.Cos(lat)*math.Cos(d)*math.Cos(ha*math.Pi/180)
	cosZen = math.Max(-1, math.Min(1, cosZen))

	return Position{
		DeclinationDeg: d * 180 / math.Pi,
		EqOfTimeMin:    eot,
		HourAngleDeg:   ha,
		ZenithDeg:      math.Acos(cosZen) * 180 / math.Pi,
		CosZenith:      cosZen,
	}
}

// equationOfTime returns apparent minus mean solar time in minutes, given
// the apparent right ascension ra in radians.
func equationOfTime(jd, ra float64) float64 {
	tau := base.J2000Century(jd) / 10
	l0 := 280.4664567 + tau*(360007.6982779+tau*(0.03032028+tau*(1.0/49931+tau*(-1.0/15300-tau/2e6))))
	dpsi, _ := nutation.Nutation(jd)
	eps := nutation.MeanObliquity(jd)

	e := l0 - 0.0057183 - ra*180/math.Pi + float64(dpsi)*180/math.Pi*math.Cos(float64(eps))
	e = math.Mod(e, 360)
	switch {
	case e > 180:
		e -= 360
	case e < -180:
		e += 360
	}
	return e * 4
}

// Zenith returns the solar zenith angle in degrees at t.
func Zenith(t time.Time, latitude, longitude float64) float64 {
	return SunPosition(t, latitude, longitude).ZenithDeg
}

// SolarNoon returns the UTC time of local solar noon on the date of day at
// the given longitude.
func SolarNoon(day time.Time, longitude float64) time.Time {
	y, m, d := day.UTC().Date()
	midday := time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
	eot := SunPosition(midday, 0, longitude).EqOfTimeMin
	return midday.Add(time.Duration((-4*longitude - eot) * float64(time.Minute)))
}

// TrueNoonZenith returns the solar zenith angle in degrees at local solar
// noon on the date of day.
func TrueNoonZenith(day time.Time, latitude, longitude float64) float64 {
	return Zenith(SolarNoon(day, longitude), latitude, longitude)
}

package conf

type Local struct {
	Locations []Location
}

// Location binds a path prefix of the public surface to an upstream module
// and an admission policy. Locations with SkipAuth get burst limiting only;
// authenticated locations may additionally enforce the daily quota.
type Location struct {
	SkipAuth     bool
	DailyQuota   bool
	PathPrefix   string `valid:"required"`
	TargetModule string `valid:"required"`
	Policy       string `valid:"required"`
}

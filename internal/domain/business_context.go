package domain

// BusinessContext is the business settings object a device keeps locally.
type BusinessContext struct {
	BusinessType TenantType `json:"business_type"`
	Currency     string     `json:"currency"`
	Timezone     string     `json:"timezone"`
	Modules      []string   `json:"modules,omitempty"`
}

func DefaultBusinessContext() BusinessContext {
	return BusinessContext{
		BusinessType: TenantTypeStable,
		Currency:     "USD",
		Timezone:     "UTC",
	}
}

// AccessMode selects where the tenancy state of a device comes from.
type AccessMode string

const (
	AccessModeNone          AccessMode = "none"
	AccessModePublic        AccessMode = "public"
	AccessModeDemo          AccessMode = "demo"
	AccessModeAuthenticated AccessMode = "authenticated"
)

func (m AccessMode) Valid() bool {
	switch m {
	case AccessModeNone, AccessModePublic, AccessModeDemo, AccessModeAuthenticated:
		return true
	}
	return false
}

// Language is a UI language supported by the platform.
type Language string

const (
	LanguageEnglish Language = "en"
	LanguageArabic  Language = "ar"
)

func (l Language) Valid() bool {
	return l == LanguageEnglish || l == LanguageArabic
}

package types

// Locator addresses an element on a page.
// By 取值 xpath、css 或 text；Script 为 true 时通过脚本点击而非原生点击。
type Locator struct {
	By     string `yaml:"by" validate:"oneof=xpath css text"`
	Expr   string `yaml:"expr" validate:"required"`
	Script bool   `yaml:"script"`
}

// Section bounds a region of the rendered text.
type Section struct {
	Start string   `yaml:"start" validate:"required"`
	Intro string   `yaml:"intro"`
	End   []string `yaml:"end"`
}

// ExtractRules configures the text extraction rules.
type ExtractRules struct {
	NameSeparator  string   `yaml:"name_separator"`
	Address        Section  `yaml:"address"`
	Phones         Section  `yaml:"phones"`
	PhoneLineTypes []string `yaml:"phone_line_types" validate:"min=1"`
	Emails         Section  `yaml:"emails"`
}

// ConsentRule 描述可选的同意弹窗及其确认按钮。
type ConsentRule struct {
	Dialog Locator `yaml:"dialog"`
	Button Locator `yaml:"button"`
}

// ChallengeTargets 描述可视化挑战的交互目标，由浏览器适配器解释。
type ChallengeTargets struct {
	Frames      []string `yaml:"frames"`
	HoldTargets []string `yaml:"hold_targets"`
	HoldX       float64  `yaml:"hold_x"`
	HoldY       float64  `yaml:"hold_y"`
}

// SiteProfile 是目标站点的全部可配置细节。
type SiteProfile struct {
	Name          string `yaml:"name"`
	SearchURL     string `yaml:"search_url" validate:"required,url"`
	NameParam     string `yaml:"name_param" validate:"required"`
	LocalityParam string `yaml:"locality_param" validate:"required"`

	ChallengeSignatures   []string `yaml:"challenge_signatures"`
	BlockSignatures       []string `yaml:"block_signatures"`
	DetailBlockSignatures []string `yaml:"detail_block_signatures"`
	TransportErrorMarkers []string `yaml:"transport_error_markers"`

	Consent      *ConsentRule     `yaml:"consent"`
	PopupScripts []string         `yaml:"popup_scripts"`
	Challenge    ChallengeTargets `yaml:"challenge"`

	SummaryLocators    []Locator `yaml:"summary_locators" validate:"dive"`
	DetailLocators     []Locator `yaml:"detail_locators" validate:"min=1,dive"`
	NameLocators       []Locator `yaml:"name_locators" validate:"dive"`
	AddressLocators    []Locator `yaml:"address_locators" validate:"dive"`
	AddressStripPrefix string    `yaml:"address_strip_prefix"`

	Extract ExtractRules `yaml:"extract"`
}

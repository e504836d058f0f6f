package styles

// HighContrastTheme favors visibility on low-contrast terminals.
var HighContrastTheme = Theme{
	Name: "high-contrast",
	Tokens: ThemeTokens{
		Text:      "#FFFFFF",
		TextMuted: "#C0C0C0",
		Border:    "#FFFFFF",
		Accent:    "#00A2FF",
		Success:   "#00FF5A",
		Warning:   "#FFB000",
		Error:     "#FF4040",
		Info:      "#66CCFF",
	},
}

package compose

const (
	TemplateFirst        = "first"
	TemplateFirstNote    = "first-note"
	TemplateFollowUp     = "followup"
	TemplateFollowUpNote = "followup-note"
)

// Builtin returns the templates every composer starts with.
func Builtin() []Template {
	nameDefault := map[string]string{"name": "there"}

	return []Template{
		{
			ID: TemplateFirst,
			Body: `Hi {{name}},

I came across your profile while exploring opportunities for the {{job_title|open}} role at {{company|your company}}. I recently applied and would appreciate a quick review of my background.

If you're hiring or can point me to the right person on your team, I'd be grateful.

Thanks,
{{sender}}`,
			Defaults: nameDefault,
		},
		{
			ID:       TemplateFirstNote,
			Body:     `Hi {{name}}, I recently applied for the {{job_title|open}} role at {{company|your company}}. Would appreciate connecting and any guidance on the hiring process. Thanks, {{sender}}`,
			Defaults: nameDefault,
			Note:     true,
		},
		{
			ID: TemplateFollowUp,
			Body: `Hi {{name}},

Just following up on my previous note regarding the {{job_title|open}} role at {{company|your company}}.
If there's someone else on your team who handles this hiring, I'd be grateful if you could point me to them.

Thanks again,
{{sender}}`,
			Defaults: nameDefault,
		},
		{
			ID:       TemplateFollowUpNote,
			Body:     `Hi {{name}}, just following up on my earlier note about the {{job_title|open}} role at {{company|your company}}. If someone else handles this hiring, I'd really appreciate it if you could point me their way. Thanks, {{sender}}`,
			Defaults: nameDefault,
			Note:     true,
		},
	}
}

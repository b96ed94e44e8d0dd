// Copyright (C) 2025 Daleel Hub (dev@daleelhub.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/daleelhub/daleel/services/llm"
)

// extractorSystemPrompt instructs the model to produce a structured
// program record from Arabic Markdown. The fallback pass covers any field
// the model leaves empty.
const extractorSystemPrompt = `
أنت محلّل يَستخرج حقولًا منظّمة من Markdown عربي يصف برنامج دعم/مبادرة.
أعد المخرجات وفق الـSchema بدقة، دون نص إضافي خارج JSON.

المتطلبات:
- استنبط id كـ slug لاتيني من name (بدون مسافات/تشكيل).
- last_updated: إن وجدت صيغة مثل "2025-08-15 14:21" حوّلها ISO8601 "2025-08-15T14:21:00".
- launch_date: إذا كان "مارس 2025" حوّله إلى "2025-03". إن تعذّر، أعد YYYY فقط.
- funding_type: اختر واحدة فقط من: grant, loan, equity, in-kind. إن لم توجد مبالغ نقدية واضحة، استخدم in-kind.
- funding_min/max: إن لم تتوافر أرقام، اجعلها 0.
- نظّف التكرارات في القوائم (steps/features/...).
- sector_tags: رشّح كلمات مثل ['الصحة','تقنية صحية','صيدليات','تحول رقمي','وصفتي/سلاسل إمداد'] بما يناسب النص.
- stage_tags: اختر من ['فكرة','MVP','إطلاق','تشغيل','نمو مبكر','نمو','توسع'] بحسب دلالات النص.
- program_type: إن احتوى العنوان على "مبادرة" فأعد "مبادرة/تمكين" وإلا "برنامج".
- objectives_text: لخص الأهداف في سطر/سطرين أو استخدم الأهداف نفسها منسّقة.
- التزم بالمصدر فقط، لا تُضِف معلومات من خارج النص.
- إن تعذّر إيجاد أي حقل، لا تتركه فارغًا: استنبط وصفًا موجزًا من الفقرات الأولى، واستخرج الأهداف من البنود أو الجُمل المفتاحية.

المفاتيح المطلوبة في JSON:
id, name, description, objectives, goals, features, eligibility_must,
sector_tags, stage_tags, url, source_path, last_updated, launch_date,
funding_type, funding_min, funding_max, program_type, objectives_text
`

// Extractor converts program Markdown into Program records via a chat
// model, then repairs gaps with FallbackEnrich.
//
// Thread Safety: Extractor is safe for concurrent use.
type Extractor struct {
	chat   llm.ChatClient
	seed   int
	logger *slog.Logger
}

// NewExtractor creates an Extractor. A nil logger uses slog.Default.
func NewExtractor(chat llm.ChatClient, seed int, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{chat: chat, seed: seed, logger: logger}
}

// Extract builds a Program from Markdown. It never returns an error: an
// unusable model reply degrades to a regex-only skeleton, so one broken
// document cannot abort an index build.
func (e *Extractor) Extract(ctx context.Context, markdown, notes string) Program {
	var p Program

	reply, err := e.chat.Chat(ctx, []llm.Message{
		{Role: "system", Content: extractorSystemPrompt},
		{Role: "user", Content: fmt.Sprintf("المصدر (Markdown):\n\n%s\n\nملاحظات إضافية: %s", markdown, notes)},
	}, llm.GenerationParams{
		Temperature: floatPtr(0),
		Seed:        &e.seed,
		JSONObject:  true,
	})
	if err != nil {
		e.logger.Warn("program extraction LLM call failed, using fallback only", slog.String("error", err.Error()))
	} else if perr := parseProgramJSON(reply, &p); perr != nil {
		e.logger.Warn("program extraction reply unusable, using fallback only", slog.String("error", perr.Error()))
		p = Program{}
	}

	FallbackEnrich(&p, markdown)
	return p
}

// parseProgramJSON decodes the first balanced JSON object in the reply.
func parseProgramJSON(reply string, p *Program) error {
	s := strings.TrimSpace(reply)
	i := strings.Index(s, "{")
	j := strings.LastIndex(s, "}")
	if i == -1 || j == -1 || j <= i {
		return fmt.Errorf("catalog: reply contains no JSON object")
	}
	if err := json.Unmarshal([]byte(s[i:j+1]), p); err != nil {
		return fmt.Errorf("catalog: decoding program JSON: %w", err)
	}
	return nil
}

func floatPtr(v float64) *float64 { return &v }

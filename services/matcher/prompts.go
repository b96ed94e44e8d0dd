// Copyright (C) 2025 Daleel Hub (dev@daleelhub.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package matcher

import (
	"fmt"
	"strings"
)

// scoringSystemPrompt pins the judge to the project/program text only and
// fixes the output contract: six JSON keys, ASCII digits, no prose.
const scoringSystemPrompt = `
أنت مُقيِّم صارم لتوافق برنامج (program) مع مشروع المستخدم (project) فقط.
لا تُسقط البرنامج حتى لو ضعيف التوافق؛ أعد درجات منخفضة مع توضيح الأسباب.
المصدر الوحيد: project + program_text. لا معرفة خارجية.

المخرجات JSON فقط بالمفاتيح:
sector_match, stage_match, funding_match, goal_alignment, reasons, improvements
الأعداد ASCII (0-9 و .). لا تضع نص خارج JSON.

سياسة الدرجات (0..1):
- غياب الدليل الصريح في program_text لأي بُعد ⇒ سقف 0.3 لذلك البُعد.
- دليل جزئي/ضمني ⇒ 0.4–0.7
- دليل صريح مطابق ⇒ 0.8–1.0

تعريفات:
- sector_match: تقاطع القطاعات نصيًا؛ إن لم تُذكر قطاعات البرنامج صراحة ⇒ ≤ 0.3.
- stage_match: قارن مرحلة المشروع مع أقل مرحلة يخدمها البرنامج؛ إن كان المشروع أبكر بدرجة+ ⇒ ≤ 0.4.
- funding_match: إن لم يذكر البرنامج تمويلًا نقديًا وحدودًا تقريبية وكان احتياج المشروع كبيرًا ⇒ ≤ 0.3.
- goal_alignment: تراكب فعلي بين أهداف المشروع و goals/objectives في البرنامج؛ إن ضعيف ⇒ ≤ 0.5.

reasons/improvements (عربي، BD-style، 2–5 عناصر):
- اجعل كل سبب يحتوي عند الإمكان: دليل: "اقتباس قصير من program_text".
- التحسينات تخص المشروع فقط. عند نقص معلومة: Missing: <العنصر>.
`

const scoringUserTemplate = `
قيّم مدى توافق الـPROJECT مع برنامج واحد (ONE PROGRAM) فقط.

[PROJECT]
- name: %s
- description: %s
- sectors: %s
- stage: %s
- funding_need: %s
- goals: %s

[PROGRAM]
(condensed program_text):
%s

قواعد التقييم:
- sector_match/stage_match/funding_match ∈ {0.0,0.1,0.2,...,1.0} (قرّب لأقرب 0.1).
- goal_alignment ∈ [0,1] (قرّب إلى منزلة عشرية واحدة إذا لزم).
- reasons/improvements بالعربية، قصيرة، محددة، خاصة بالمشروع، وتضمّن "دليل: \"...\"" عند الإمكان.
أعد JSON بالمفاتيح الستة فقط.
`

// buildScoringUserPrompt renders the per-candidate user message.
func buildScoringUserPrompt(p Project, programText string) string {
	funding := ""
	if p.FundingNeed != 0 {
		funding = fmt.Sprintf("%v", p.FundingNeed)
	}
	return fmt.Sprintf(scoringUserTemplate,
		p.Name,
		p.Description,
		strings.Join(p.Sectors, ", "),
		p.Stage,
		funding,
		strings.Join(p.Goals, ", "),
		programText,
	)
}

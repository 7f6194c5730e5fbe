package oracle

const systemPrompt = `You verify product catalog data against reference web pages.
Only report what the provided material states. Never guess or fill gaps from general knowledge.
Always answer with a single JSON object and nothing else.`

const compareImagesPrompt = `The first image is our catalog product. The second image comes from a reference web page.
Decide whether both images show the same product (same model, not merely the same category).
Respond with JSON: {"similar": true|false, "confidence": 0-100, "reasoning": "..."}`

const compareAttributesPrompt = `Our catalog product was classified from its photo as:
%s

Reference page:
---
%s
---

Does the reference page describe a product with these attributes?
Respond with JSON: {"similar": true|false, "confidence": 0-100, "reasoning": "..."}`

const extractRecordPrompt = `Extract product information from this page (%s).%s

Page content:
---
%s
---

Copy values as written on the page. Leave fields empty when the page does not state them.
Respond with JSON:
{"productName": "", "description": "", "specifications": {"key": "value"}, "relatedProducts": [], "installationInfo": "", "certifications": []}`

const extractFieldPrompt = `From the page content below, extract the product's %s exactly as written.

---
%s
---

Respond with JSON: {"value": "...", "found": true|false}`

const extractClaimsPrompt = `Break this product description into atomic, independently checkable factual claims.
Skip marketing language that cannot be checked. Tag each claim's importance as "high", "medium" or "low".

Description:
---
%s
---

Respond with JSON: {"claims": [{"claim": "...", "importance": "high"}]}`

const verifyClaimPrompt = `Claim: %s

Source content:
---
%s
---

Does the source support the claim, contradict it, or say nothing about it?
Respond with JSON: {"supported": true|false, "contradicted": true|false, "reasoning": "..."}`

const checkEquivalencePrompt = `Different sources report these values for the product field %q:
%s

Are they the same value expressed differently (units, formatting, abbreviations)?
"equivalent": identical meaning. "compatible": one is a less precise form of the other.
When either holds, give one normalized value.
Respond with JSON: {"equivalent": true|false, "compatible": true|false, "normalizedValue": "...", "reasoning": "..."}`

const analyzeImagePrompt = `Classify the product in this image. Product name: %q.
Report printed text such as model numbers or SKUs in detectedText.
Respond with JSON:
{"category": "", "subcategory": "", "materials": [], "colors": [], "style": "", "usageContext": "", "targetDemographic": "", "confidence": 0-100, "detectedText": []}`

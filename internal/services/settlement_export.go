package services

import (
	"encoding/xml"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/moov-io/iso20022/pkg/common"
	"github.com/moov-io/iso20022/pkg/pacs_v08"
	"github.com/talenthub/backend/internal/models"
)

// SettlementExporter renders licensee payouts as ISO 20022 messages for the
// banking partner: a pacs.008 credit transfer instruction when the settlement
// is generated, and a pacs.002 status report once it has been paid.
type SettlementExporter struct {
	currency string
	bic      string
}

func NewSettlementExporter(currency, bic string) *SettlementExporter {
	if currency == "" {
		currency = "USD"
	}
	if bic == "" {
		bic = "TALENTHUB"
	}
	return &SettlementExporter{currency: currency, bic: bic}
}

// ExportPayoutInstruction builds and dispatches the pacs.008 for a freshly
// generated settlement.
func (se *SettlementExporter) ExportPayoutInstruction(settlement *models.Settlement) error {
	doc, err := se.CreatePacs008(settlement)
	if err != nil {
		return err
	}
	return se.send("pacs.008.001.08", doc)
}

// ExportStatusReport builds and dispatches the pacs.002 confirming the payout.
func (se *SettlementExporter) ExportStatusReport(reference, paymentReference string) error {
	doc, err := se.CreatePacs002(reference, paymentReference, "ACSC")
	if err != nil {
		return err
	}
	return se.send("pacs.002.001.08", doc)
}

// CreatePacs008 creates the FIToFICustomerCreditTransfer instructing the bank
// to pay the licensee share.
func (se *SettlementExporter) CreatePacs008(settlement *models.Settlement) (*pacs_v08.FIToFICustomerCreditTransferV08, error) {
	msgID := uuid.New().String()
	now := time.Now()
	settlementDate := now
	amount := float64(settlement.TotalAmount) / 100

	doc := &pacs_v08.FIToFICustomerCreditTransferV08{
		GrpHdr: pacs_v08.GroupHeader93{
			MsgId:   common.Max35Text(msgID),
			CreDtTm: common.ISODateTime(now),
			NbOfTxs: "1",
			TtlIntrBkSttlmAmt: &pacs_v08.ActiveCurrencyAndAmount{
				Ccy:   common.ActiveCurrencyCode(se.currency),
				Value: amount,
			},
			IntrBkSttlmDt: (*common.ISODate)(&settlementDate),
			SttlmInf: pacs_v08.SettlementInstruction7{
				SttlmMtd: "CLRG",
			},
		},
		CdtTrfTxInf: []pacs_v08.CreditTransferTransaction39{
			{
				PmtId: pacs_v08.PaymentIdentification7{
					InstrId:    &[]common.Max35Text{common.Max35Text(settlement.Reference)}[0],
					EndToEndId: common.Max35Text(settlement.Reference),
					TxId:       &[]common.Max35Text{common.Max35Text(fmt.Sprintf("STLMT-%d", settlement.ID))}[0],
				},
				IntrBkSttlmAmt: pacs_v08.ActiveCurrencyAndAmount{
					Ccy:   common.ActiveCurrencyCode(se.currency),
					Value: amount,
				},
				IntrBkSttlmDt: (*common.ISODate)(&settlementDate),
				ChrgBr:        "SLEV",
				DbtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
					FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
						BICFI: &[]common.BICFIDec2014Identifier{common.BICFIDec2014Identifier(se.bic)}[0],
					},
				},
				Dbtr: pacs_v08.PartyIdentification135{
					Nm: &[]common.Max140Text{common.Max140Text("TalentHub Platform")}[0],
				},
				CdtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
					FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
						ClrSysMmbId: &pacs_v08.ClearingSystemMemberIdentification2{
							MmbId: common.Max35Text(fmt.Sprintf("LICENSEE-%d", settlement.LicenseeID)),
						},
					},
				},
				Cdtr: pacs_v08.PartyIdentification135{
					Nm: &[]common.Max140Text{common.Max140Text(fmt.Sprintf("Licensee %d", settlement.LicenseeID))}[0],
				},
			},
		},
	}

	return doc, nil
}

// CreatePacs002 creates the payment status report referencing the original
// payout instruction.
func (se *SettlementExporter) CreatePacs002(originalReference, paymentReference, status string) (*pacs_v08.FIToFIPaymentStatusReportV08, error) {
	msgID := uuid.New().String()

	doc := &pacs_v08.FIToFIPaymentStatusReportV08{
		GrpHdr: pacs_v08.GroupHeader53{
			MsgId:   common.Max35Text(msgID),
			CreDtTm: common.ISODateTime(time.Now()),
		},
		TxInfAndSts: []pacs_v08.PaymentTransaction80{
			{
				OrgnlInstrId:    &[]common.Max35Text{common.Max35Text(originalReference)}[0],
				OrgnlEndToEndId: &[]common.Max35Text{common.Max35Text(originalReference)}[0],
				OrgnlTxId:       &[]common.Max35Text{common.Max35Text(paymentReference)}[0],
				TxSts:           &[]pacs_v08.ExternalPaymentTransactionStatus1Code{pacs_v08.ExternalPaymentTransactionStatus1Code(status)}[0],
			},
		},
	}

	return doc, nil
}

// ConvertToXML renders an ISO 20022 document as an XML string.
func (se *SettlementExporter) ConvertToXML(doc interface{}) (string, error) {
	data, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal XML: %w", err)
	}
	return xml.Header + string(data), nil
}

// send hands the rendered message to the banking partner. The transport is a
// drop directory in production, so here it only logs the payload.
func (se *SettlementExporter) send(messageType string, doc interface{}) error {
	data, err := se.ConvertToXML(doc)
	if err != nil {
		return err
	}

	log.Printf("[SETTLEMENT] Exporting %s message (%d bytes)", messageType, len(data))
	return nil
}

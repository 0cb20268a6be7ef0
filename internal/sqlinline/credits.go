package sqlinline

const QSelectBalance = `--sql 40da256d-12a4-4167-b9cc-ed41db44b1f9
select balance from credit_accounts where owner_id = $1::uuid;
`

const QEnsureAccount = `--sql aee7624f-2576-4c5f-b946-a62294e41ea1
insert into credit_accounts (owner_id)
values ($1::uuid)
on conflict (owner_id) do nothing;
`

// QInsertChargeEntry appends the charge only if none exists for the job
// yet; zero returned rows means the job was already charged.
const QInsertChargeEntry = `--sql efc12793-6e5e-4c93-adfc-e7425a9e2f7a
insert into credit_ledger (owner_id, kind, amount, job_id)
select $1::uuid, 'charge', $2::bigint, $3::uuid
where not exists (
    select 1 from credit_ledger where job_id = $3::uuid and kind = 'charge'
)
returning id;
`

// QDebitBalance decrements only when the balance covers the amount; the
// caller checks rows affected and aborts the transaction otherwise.
const QDebitBalance = `--sql ddeb2dae-ebfb-4642-89b6-768a4ddc6a0f
update credit_accounts
set balance = balance - $2::bigint, updated_at = now()
where owner_id = $1::uuid and balance >= $2::bigint;
`

// QInsertRefundEntry mirrors the charge amount back. Zero returned rows
// means either no charge exists or the refund was already appended.
const QInsertRefundEntry = `--sql e680216e-8385-4898-ac07-8cd798a9a122
insert into credit_ledger (owner_id, kind, amount, job_id)
select c.owner_id, 'refund', c.amount, c.job_id
from credit_ledger c
where c.job_id = $1::uuid and c.kind = 'charge'
  and not exists (
      select 1 from credit_ledger r where r.job_id = $1::uuid and r.kind = 'refund'
  )
returning id, owner_id, amount;
`

const QCreditBalance = `--sql c0a3f8c1-ae11-49b7-a371-e002b31cd2c6
update credit_accounts
set balance = balance + $2::bigint, updated_at = now()
where owner_id = $1::uuid;
`

const QInsertGrantEntry = `--sql 9e87875f-0f31-4ced-b276-980a9ff158dc
insert into credit_ledger (owner_id, kind, amount)
values ($1::uuid, 'grant', $2::bigint)
returning id;
`

const QSelectChargeEntry = `--sql fdf7223d-e86b-4c07-9f07-497ad2787e06
select id, amount from credit_ledger where job_id = $1::uuid and kind = 'charge';
`

const QSelectLedgerEntries = `--sql 202df9ba-46c4-481f-a437-5ead01550a92
select id, owner_id, kind, amount, coalesce(job_id::text, ''), created_at
from credit_ledger
where owner_id = $1::uuid
order by created_at desc
limit $2::int;
`

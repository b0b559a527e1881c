package eth

// expenseTrackerABI is the subset of the ExpenseTracker contract ABI used by the client.
const expenseTrackerABI = `[
  {"type":"function","name":"getAllRegisteredPeople","stateMutability":"view","inputs":[],
   "outputs":[{"name":"","type":"address[]"}]},
  {"type":"function","name":"getPerson","stateMutability":"view",
   "inputs":[{"name":"_addr","type":"address"}],
   "outputs":[{"name":"name","type":"string"},{"name":"walletAddress","type":"address"}]},
  {"type":"function","name":"getTotalRegisteredPeople","stateMutability":"view","inputs":[],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"expenseCount","stateMutability":"view","inputs":[],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"getExpenseBasicInfo","stateMutability":"view",
   "inputs":[{"name":"_expenseId","type":"uint256"}],
   "outputs":[{"name":"id","type":"uint256"},{"name":"label","type":"string"},{"name":"timestamp","type":"uint256"}]},
  {"type":"function","name":"getExpenseParticipants","stateMutability":"view",
   "inputs":[{"name":"_expenseId","type":"uint256"}],
   "outputs":[{"name":"","type":"address[]"}]},
  {"type":"function","name":"getAmountPaid","stateMutability":"view",
   "inputs":[{"name":"_expenseId","type":"uint256"},{"name":"_participant","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"getAmountOwed","stateMutability":"view",
   "inputs":[{"name":"_expenseId","type":"uint256"},{"name":"_participant","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"getNetBalance","stateMutability":"view",
   "inputs":[{"name":"_person","type":"address"}],
   "outputs":[{"name":"","type":"int256"}]},
  {"type":"function","name":"getOverdueDebts","stateMutability":"view",
   "inputs":[{"name":"_debtor","type":"address"}],
   "outputs":[{"name":"creditors","type":"address[]"},{"name":"amounts","type":"uint256[]"},{"name":"daysOld","type":"uint256[]"}]},
  {"type":"function","name":"registerPerson","stateMutability":"nonpayable",
   "inputs":[{"name":"_name","type":"string"}],"outputs":[]},
  {"type":"function","name":"updateName","stateMutability":"nonpayable",
   "inputs":[{"name":"_newName","type":"string"}],"outputs":[]},
  {"type":"function","name":"addExpense","stateMutability":"nonpayable",
   "inputs":[{"name":"_label","type":"string"},{"name":"_participants","type":"address[]"},
             {"name":"_amountsPaid","type":"uint256[]"},{"name":"_amountsOwed","type":"uint256[]"}],
   "outputs":[]}
]`
